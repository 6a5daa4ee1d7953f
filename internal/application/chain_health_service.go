package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chainhealth/internal/application/port"
	"chainhealth/internal/config"
	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"
	"chainhealth/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Compile-time check
var _ port.ChainHealthService = (*chainHealthService)(nil)

// chainHealthService memoizes per-chain selections and deduplicates concurrent selections of a chain.
type chainHealthService struct {
	selector  *Selector
	catalog   domainRepo.CatalogRepository
	cache     domainRepo.HealthCacheRepository
	unhealthy domainRepo.UnhealthyRepository
	observer  port.Observer

	flights          singleflight.Group
	slots            *semaphore.Weighted
	selectionTimeout time.Duration

	mu          sync.Mutex
	generations map[string]uint64

	now    func() time.Time
	logger *zap.Logger
}

// NewChainHealthService creates the service and subscribes it to suppressions so that cached
// entries never keep an endpoint that just failed a probe.
func NewChainHealthService(
	selector *Selector,
	catalog domainRepo.CatalogRepository,
	cache domainRepo.HealthCacheRepository,
	unhealthy domainRepo.UnhealthyRepository,
	observer port.Observer,
	cfg config.HealthCacheConfig,
	logger *zap.Logger,
) port.ChainHealthService {
	if observer == nil {
		observer = port.NopObserver{}
	}
	selectionTimeout := cfg.SelectionTimeout
	if selectionTimeout <= 0 {
		selectionTimeout = time.Minute
	}

	s := &chainHealthService{
		selector:         selector,
		catalog:          catalog,
		cache:            cache,
		unhealthy:        unhealthy,
		observer:         observer,
		slots:            semaphore.NewWeighted(cfg.GetMaxConcurrentSelections()),
		selectionTimeout: selectionTimeout,
		generations:      make(map[string]uint64),
		now:              time.Now,
		logger:           logger.Named("ChainHealthService"),
	}

	unhealthy.OnSuppress(s.onSuppress)

	return s
}

// GetOrSelect returns the cached entry of a chain or joins the single in-flight selection for it.
func (s *chainHealthService) GetOrSelect(ctx context.Context, chain string) (entity.ChainHealthEntry, error) {
	if entry, found := s.cache.GetEntry(ctx, chain); found {
		return entry, nil
	}

	gen := s.generation(chain)
	// The flight outlives its first caller: other callers may be waiting on it.
	results := s.flights.DoChan(chain, func() (interface{}, error) {
		return s.selectEntry(context.Background(), chain, gen)
	})

	select {
	case <-ctx.Done():
		return entity.ChainHealthEntry{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return entity.ChainHealthEntry{}, res.Err
		}
		return res.Val.(entity.ChainHealthEntry), nil
	}
}

// Select runs a fresh, uncached selection for one kind.
func (s *chainHealthService) Select(ctx context.Context, chain string, kind entity.Kind) (entity.Endpoint, error) {
	return s.selector.Select(ctx, chain, kind)
}

// Invalidate drops the entry of a chain. A selection already in flight will not store its result.
func (s *chainHealthService) Invalidate(ctx context.Context, chain string) {
	s.mu.Lock()
	s.generations[chain]++
	s.mu.Unlock()

	s.flights.Forget(chain)
	s.cache.DeleteEntry(ctx, chain)
	s.observer.ObserveInvalidation("explicit")
	s.logger.Info("Chain health entry invalidated", zap.String("chain", chain))
}

// Refresh invalidates and reselects a chain.
func (s *chainHealthService) Refresh(ctx context.Context, chain string) (entity.ChainHealthEntry, error) {
	s.Invalidate(ctx, chain)
	return s.GetOrSelect(ctx, chain)
}

// ListChains returns every chain declared in the catalog.
func (s *chainHealthService) ListChains(ctx context.Context) ([]string, error) {
	return s.catalog.ListChains(ctx)
}

// selectEntry selects rpc and rest concurrently, each as a sequential first-match search.
func (s *chainHealthService) selectEntry(ctx context.Context, chain string, gen uint64) (entity.ChainHealthEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.selectionTimeout)
	defer cancel()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return entity.ChainHealthEntry{}, fmt.Errorf("%w: waiting for a selection slot for %s: %v",
			apperrors.ErrTimeout, chain, err,
		)
	}
	defer s.slots.Release(1)

	// A flight that finished just before this one started may already have stored the entry.
	if entry, found := s.cache.GetEntry(ctx, chain); found && s.generation(chain) == gen {
		return entry, nil
	}

	c, err := s.catalog.GetChain(ctx, chain)
	if err != nil {
		return entity.ChainHealthEntry{}, err
	}

	var (
		rpc, rest entity.Endpoint
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rpc = s.selector.SelectFrom(ctx, c, entity.KindRPC)
	}()
	go func() {
		defer wg.Done()
		rest = s.selector.SelectFrom(ctx, c, entity.KindREST)
	}()
	wg.Wait()

	entry := entity.ChainHealthEntry{
		Chain:      chain,
		RPC:        rpc,
		REST:       rest,
		GRPC:       firstDeclared(c.Endpoints(entity.KindGRPC)),
		SelectedAt: s.now(),
	}

	if ctx.Err() != nil {
		s.logger.Warn("Selection budget exhausted, result not cached",
			zap.String("chain", chain), zap.Duration("budget", s.selectionTimeout),
		)
		return entry, nil
	}

	s.store(ctx, entry, gen)
	return entry, nil
}

// store caches entry unless the chain was invalidated since the selection started.
func (s *chainHealthService) store(ctx context.Context, entry entity.ChainHealthEntry, gen uint64) {
	s.mu.Lock()
	if s.generations[entry.Chain] != gen {
		s.mu.Unlock()
		s.logger.Debug("Chain invalidated during selection, discarding result", zap.String("chain", entry.Chain))
		return
	}
	s.cache.SetEntry(ctx, entry)
	s.mu.Unlock()

	// A concurrent probe may have suppressed a selected endpoint before the entry was visible.
	if (!entry.RPC.IsUnknown() && s.unhealthy.IsSuppressed(entry.RPC.Address)) ||
		(!entry.REST.IsUnknown() && s.unhealthy.IsSuppressed(entry.REST.Address)) {
		s.cache.DeleteEntry(ctx, entry.Chain)
		s.observer.ObserveInvalidation("suppressed")
		return
	}

	s.logger.Info("Chain health entry stored",
		zap.String("chain", entry.Chain),
		zap.String("rpc", entry.RPC.String()),
		zap.String("rest", entry.REST.String()),
	)
}

func (s *chainHealthService) onSuppress(address entity.Address) {
	for range s.cache.DeleteReferencing(context.Background(), address) {
		s.observer.ObserveInvalidation("suppressed")
	}
}

func (s *chainHealthService) generation(chain string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[chain]
}

func firstDeclared(endpoints []entity.Endpoint) entity.Endpoint {
	if len(endpoints) == 0 {
		return entity.Unknown
	}
	return endpoints[0]
}
