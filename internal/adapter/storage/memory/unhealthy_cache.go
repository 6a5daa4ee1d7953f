package memory

import (
	"context"
	"sync"
	"time"

	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.UnhealthyRepository = (*UnhealthyCache)(nil)

// UnhealthyCache implements domainRepo.UnhealthyRepository on top of go-cache.
// Entries never expire individually: Run clears the whole set every sweep interval.
type UnhealthyCache struct {
	mu            sync.Mutex
	cache         *cache.Cache
	lastClearedAt time.Time
	subscribers   []func(entity.Address)
	interval      time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewUnhealthyCache creates an empty unhealthy cache swept every interval once Run is started.
func NewUnhealthyCache(interval time.Duration, logger *zap.Logger) *UnhealthyCache {
	return &UnhealthyCache{
		// No janitor: expiry is handled by the global sweep.
		cache:         cache.New(cache.NoExpiration, 0),
		lastClearedAt: time.Now(),
		interval:      interval,
		now:           time.Now,
		logger:        logger.Named("UnhealthyCache"),
	}
}

// IsSuppressed reports whether the address failed a probe since the last sweep.
func (u *UnhealthyCache) IsSuppressed(address entity.Address) bool {
	_, found := u.cache.Get(address.String())
	return found
}

// Suppress records a failed probe for the address and notifies subscribers.
func (u *UnhealthyCache) Suppress(address entity.Address) {
	u.mu.Lock()
	u.cache.Set(address.String(), u.now(), cache.NoExpiration)
	subscribers := u.subscribers
	u.mu.Unlock()

	u.logger.Debug("Endpoint suppressed", zap.String("address", address.String()))
	for _, fn := range subscribers {
		fn(address)
	}
}

// Sweep clears every suppression.
func (u *UnhealthyCache) Sweep() {
	u.mu.Lock()
	cleared := u.cache.ItemCount()
	u.cache.Flush()
	u.lastClearedAt = u.now()
	u.mu.Unlock()

	u.logger.Debug("Unhealthy cache swept", zap.Int("cleared", cleared))
}

// OnSuppress registers a callback invoked after an address becomes suppressed.
func (u *UnhealthyCache) OnSuppress(fn func(address entity.Address)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.subscribers = append(u.subscribers, fn)
}

// LastClearedAt returns the time of the last sweep.
func (u *UnhealthyCache) LastClearedAt() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastClearedAt
}

// Size returns the number of suppressed addresses.
func (u *UnhealthyCache) Size() int {
	return u.cache.ItemCount()
}

// Run sweeps the cache every interval until ctx is cancelled.
func (u *UnhealthyCache) Run(ctx context.Context) {
	if u.interval <= 0 {
		u.logger.Info("Unhealthy cache sweeper disabled (interval <= 0)")
		return
	}

	u.logger.Info("Starting unhealthy cache sweeper", zap.Duration("interval", u.interval))
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.Sweep()
		case <-ctx.Done():
			u.logger.Info("Unhealthy cache sweeper stopping due to context cancellation.")
			return
		}
	}
}
