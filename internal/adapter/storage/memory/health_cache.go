package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainRepo.HealthCacheRepository = (*HealthCache)(nil)

const chainHealthKeyPrefix = "chain_health_"

// HealthCache implements domainRepo.HealthCacheRepository using the go-cache in-memory library.
type HealthCache struct {
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewHealthCache creates a chain health cache. A zero ttl keeps entries until they are deleted.
func NewHealthCache(ttl time.Duration, logger *zap.Logger) *HealthCache {
	expiration := ttl
	cleanupInterval := time.Duration(0)
	if ttl <= 0 {
		expiration = cache.NoExpiration
	} else {
		cleanupInterval = ttl
	}

	logger.Info(
		"Initialized go-cache for chain health entries",
		zap.Duration("ttl", ttl),
	)

	return &HealthCache{
		cache:  cache.New(expiration, cleanupInterval),
		ttl:    expiration,
		logger: logger.Named("HealthCache"),
	}
}

// GetEntry returns the cached selection for a chain.
func (h *HealthCache) GetEntry(_ context.Context, chain string) (entity.ChainHealthEntry, bool) {
	key := chainHealthKeyPrefix + chain
	if x, found := h.cache.Get(key); found {
		if entry, ok := x.(entity.ChainHealthEntry); ok {
			h.logger.Debug("Health cache hit", zap.String("key", key))
			return entry, true
		}
		h.logger.Warn(
			"Health cache data type mismatch for key",
			zap.String("key", key), zap.Any("type", fmt.Sprintf("%T", x)),
		)
	}
	h.logger.Debug("Health cache miss", zap.String("key", key))
	return entity.ChainHealthEntry{}, false
}

// SetEntry replaces the cached selection of entry.Chain.
func (h *HealthCache) SetEntry(_ context.Context, entry entity.ChainHealthEntry) {
	key := chainHealthKeyPrefix + entry.Chain
	h.cache.Set(key, entry, h.ttl)
	h.logger.Debug("Health cache set", zap.String("key", key), zap.Duration("ttl", h.ttl))
}

// DeleteEntry drops the cached selection of a chain.
func (h *HealthCache) DeleteEntry(_ context.Context, chain string) {
	h.cache.Delete(chainHealthKeyPrefix + chain)
	h.logger.Debug("Health cache entry deleted", zap.String("chain", chain))
}

// DeleteReferencing drops every entry that selected the address.
func (h *HealthCache) DeleteReferencing(_ context.Context, address entity.Address) []string {
	var chains []string
	for key, item := range h.cache.Items() {
		entry, ok := item.Object.(entity.ChainHealthEntry)
		if !ok || !entry.References(address) {
			continue
		}
		h.cache.Delete(key)
		chains = append(chains, strings.TrimPrefix(key, chainHealthKeyPrefix))
	}
	if len(chains) > 0 {
		h.logger.Info("Invalidated chain health entries referencing suppressed endpoint",
			zap.String("address", address.String()), zap.Strings("chains", chains))
	}
	return chains
}
