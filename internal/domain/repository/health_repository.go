package repository

import (
	"context"

	"chainhealth/internal/domain/entity"
)

// UnhealthyRepository records endpoint addresses suppressed from probing.
type UnhealthyRepository interface {
	// IsSuppressed reports whether the address failed a probe since the last sweep.
	IsSuppressed(address entity.Address) bool

	// Suppress records a failed probe for the address.
	Suppress(address entity.Address)

	// Sweep clears every suppression.
	Sweep()

	// OnSuppress registers a callback invoked after an address becomes suppressed.
	OnSuppress(fn func(address entity.Address))
}

// HealthCacheRepository stores one ChainHealthEntry per chain.
type HealthCacheRepository interface {
	GetEntry(ctx context.Context, chain string) (entity.ChainHealthEntry, bool)
	SetEntry(ctx context.Context, entry entity.ChainHealthEntry)
	DeleteEntry(ctx context.Context, chain string)
	// DeleteReferencing removes every entry using the address and returns the affected chains.
	DeleteReferencing(ctx context.Context, address entity.Address) []string
}
