package port

import (
	"context"
	"time"

	"chainhealth/internal/domain/entity"
)

// ChainHealthService defines the endpoint selection API used by delivery layers and consumers.
type ChainHealthService interface {
	// GetOrSelect returns the memoized selection of a chain, selecting rpc and rest on a miss.
	GetOrSelect(ctx context.Context, chain string) (entity.ChainHealthEntry, error)

	// Select runs a fresh selection for one kind. Exhaustion yields entity.Unknown, not an error.
	Select(ctx context.Context, chain string, kind entity.Kind) (entity.Endpoint, error)

	// Invalidate drops the memoized selection of a chain.
	Invalidate(ctx context.Context, chain string)

	// Refresh invalidates and reselects a chain.
	Refresh(ctx context.Context, chain string) (entity.ChainHealthEntry, error)

	// ListChains returns every chain declared in the catalog.
	ListChains(ctx context.Context) ([]string, error)
}

// Observer receives events from the selection subsystem.
type Observer interface {
	ObserveVerdict(verdict entity.ProbeVerdict)
	ObserveSuppressedSkip(kind entity.Kind)
	ObserveSelection(kind entity.Kind, found bool, elapsed time.Duration)
	ObserveInvalidation(cause string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ObserveVerdict(entity.ProbeVerdict) {}
func (NopObserver) ObserveSuppressedSkip(entity.Kind) {}
func (NopObserver) ObserveSelection(entity.Kind, bool, time.Duration) {}
func (NopObserver) ObserveInvalidation(string) {}
