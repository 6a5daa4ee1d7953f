package service

import (
	"context"

	"chainhealth/internal/domain/entity"
)

// ReachabilityProber defines the name-resolution check run before any liveness probe.
type ReachabilityProber interface {
	Reachable(ctx context.Context, hostname string) bool
}

// LivenessProber defines the kind-specific freshness probe.
type LivenessProber interface {
	Probe(ctx context.Context, endpoint entity.Endpoint) entity.ProbeVerdict

	// Supports reports whether a probe exists for the kind.
	Supports(kind entity.Kind) bool
}
