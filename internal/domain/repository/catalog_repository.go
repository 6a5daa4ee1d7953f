package repository

import (
	"context"

	"chainhealth/internal/domain/entity"
)

// CatalogRepository defines the read-only view of declared endpoints per chain.
type CatalogRepository interface {
	// GetChain returns the declared catalog of one chain, or domain.ErrChainNotFound.
	GetChain(ctx context.Context, chain string) (entity.Chain, error)

	// ListChains returns the identifiers of all declared chains, mainnets first.
	ListChains(ctx context.Context) ([]string, error)
}
