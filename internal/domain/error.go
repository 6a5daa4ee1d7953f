package domain

import "errors"

var (
	// ErrChainNotFound means the requested chain is not declared in the catalog.
	ErrChainNotFound = errors.New("chain not found")

	// ErrCatalogUnavailable means the catalog could not be read (registry missing, I/O failure).
	ErrCatalogUnavailable = errors.New("endpoint catalog unavailable")

	// ErrNoHealthyEndpoint means every candidate of a kind failed its health checks.
	ErrNoHealthyEndpoint = errors.New("no healthy endpoint available")

	// ErrUnsupportedKind means no liveness probe exists for the endpoint kind.
	ErrUnsupportedKind = errors.New("unsupported endpoint kind")
)
