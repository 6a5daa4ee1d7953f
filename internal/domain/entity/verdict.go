package entity

import "time"

// Reason classifies why a probe did not produce a healthy verdict.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnreachableHost   Reason = "unreachable_host"
	ReasonInsecureScheme    Reason = "insecure_scheme"
	ReasonTimeout           Reason = "timeout"
	ReasonMalformedResponse Reason = "malformed_response"
	ReasonUnsupportedKind   Reason = "unsupported_kind"
	ReasonStale             Reason = "stale"
	ReasonRequestFailed     Reason = "request_failed"
	ReasonCancelled         Reason = "cancelled"
)

// Suppresses reports whether a verdict with this reason puts the address in the unhealthy cache.
// Policy rejections and caller cancellation are not probe failures.
func (r Reason) Suppresses() bool {
	switch r {
	case ReasonUnreachableHost, ReasonTimeout, ReasonMalformedResponse, ReasonStale, ReasonRequestFailed:
		return true
	default:
		return false
	}
}

// ProbeVerdict is the outcome of a single liveness probe. It is never mutated.
type ProbeVerdict struct {
	Address         Address
	Kind            Kind
	Healthy         bool
	LatestBlockTime time.Time // zero when the endpoint did not report one
	Reason          Reason
	Err             error
	CheckedAt       time.Time
}

// HasBlockTime reports whether the endpoint reported a latest block time.
func (v ProbeVerdict) HasBlockTime() bool {
	return !v.LatestBlockTime.IsZero()
}
