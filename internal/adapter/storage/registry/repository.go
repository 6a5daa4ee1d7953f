package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	dto "chainhealth/internal/adapter/storage/registry/dto"
	"chainhealth/internal/config"
	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"
	"chainhealth/internal/pkg/apperrors"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Compile-time check
var _ domainRepo.CatalogRepository = (*Repository)(nil)

const (
	chainFileName  = "chain.json"
	testnetsDir    = "testnets"
	testnetPrefix  = testnetsDir + "/"
	chainKeyPrefix = "registry_chain_"
	chainListKey   = "registry_chains"
)

var chainNamePattern = regexp.MustCompile(`^(testnets/)?[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Repository implements CatalogRepository over a local chain-registry snapshot,
// optionally extended by a static YAML overlay.
type Repository struct {
	dir    string
	static map[string]dto.APIsRaw
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRepository creates a registry repository. The static overlay file, when configured, must be readable.
func NewRepository(cfg config.RegistryConfig, cacheCfg config.CacheConfig, logger *zap.Logger) (*Repository, error) {
	r := &Repository{
		dir:    cfg.Dir,
		cache:  cache.New(cacheCfg.GetDefaultExpiration(), cacheCfg.GetCleanupInterval()),
		logger: logger.Named("RegistryStorage"),
	}

	if cfg.StaticFile != "" {
		static, err := loadStaticCatalog(cfg.StaticFile)
		if err != nil {
			return nil, err
		}
		r.static = static
		r.logger.Info("Loaded static endpoint overlay",
			zap.String("file", cfg.StaticFile), zap.Int("chains", len(static)),
		)
	}

	return r, nil
}

func loadStaticCatalog(path string) (map[string]dto.APIsRaw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading static catalog %s: %v", domain.ErrCatalogUnavailable, path, err)
	}
	var raw dto.StaticCatalogRaw
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing static catalog %s: %v", domain.ErrCatalogUnavailable, path, err)
	}
	for name := range raw.Chains {
		if !validChainName(name) {
			return nil, fmt.Errorf("%w: static catalog %s declares invalid chain name %q",
				apperrors.ErrInvalidInput, path, name,
			)
		}
	}
	return raw.Chains, nil
}

// GetChain reads the declared catalog of one chain.
func (r *Repository) GetChain(_ context.Context, chain string) (entity.Chain, error) {
	if !validChainName(chain) {
		return entity.Chain{}, fmt.Errorf("%w: %w: %q", domain.ErrChainNotFound, apperrors.ErrInvalidInput, chain)
	}

	key := chainKeyPrefix + chain
	if x, found := r.cache.Get(key); found {
		if c, ok := x.(entity.Chain); ok {
			r.logger.Debug("Registry cache hit", zap.String("key", key))
			return c, nil
		}
	}

	var overlay *dto.APIsRaw
	if apis, ok := r.static[chain]; ok {
		overlay = &apis
	}

	path := filepath.Join(r.dir, filepath.FromSlash(chain), chainFileName)
	data, err := os.ReadFile(path)
	var raw dto.ChainRaw
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if overlay == nil {
			return entity.Chain{}, fmt.Errorf("%w: %s", domain.ErrChainNotFound, chain)
		}
		raw.ChainName = strings.TrimPrefix(chain, testnetPrefix)
	case err != nil:
		r.logger.Error("Failed to read chain file", zap.String("path", path), zap.Error(err))
		return entity.Chain{}, fmt.Errorf("%w: reading %s: %v", domain.ErrCatalogUnavailable, path, err)
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			r.logger.Error("Failed to parse chain file", zap.String("path", path), zap.Error(err))
			return entity.Chain{}, fmt.Errorf("%w: parsing %s: %v", domain.ErrCatalogUnavailable, path, err)
		}
	}

	c := toDomainChain(chain, raw, overlay, r.logger)
	r.cache.Set(key, c, cache.DefaultExpiration)
	return c, nil
}

// ListChains lists mainnet chains, then testnets, each sorted case-insensitively.
func (r *Repository) ListChains(_ context.Context) ([]string, error) {
	if x, found := r.cache.Get(chainListKey); found {
		if names, ok := x.([]string); ok {
			return names, nil
		}
	}

	mainnets, err := listChainDirs(r.dir, "")
	if err != nil && len(r.static) == 0 {
		r.logger.Error("Failed to list registry directory", zap.String("dir", r.dir), zap.Error(err))
		return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrCatalogUnavailable, r.dir, err)
	}
	testnets, _ := listChainDirs(filepath.Join(r.dir, testnetsDir), testnetPrefix)

	seen := make(map[string]struct{}, len(mainnets)+len(testnets))
	for _, name := range append(append([]string(nil), mainnets...), testnets...) {
		seen[name] = struct{}{}
	}
	for name := range r.static {
		if _, ok := seen[name]; ok {
			continue
		}
		if strings.HasPrefix(name, testnetPrefix) {
			testnets = append(testnets, name)
		} else {
			mainnets = append(mainnets, name)
		}
	}

	sortFold(mainnets)
	sortFold(testnets)
	names := append(mainnets, testnets...)
	r.cache.Set(chainListKey, names, cache.DefaultExpiration)
	return names, nil
}

// Invalidate drops every parsed document, typically after the snapshot was updated.
func (r *Repository) Invalidate() {
	r.cache.Flush()
	r.logger.Debug("Registry cache flushed")
}

func listChainDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == testnetsDir || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, prefix+name)
	}
	return names, nil
}

func sortFold(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
}

func validChainName(name string) bool {
	return chainNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

func isTestnetName(name string) bool {
	return strings.HasPrefix(name, testnetPrefix)
}
