package probe

import (
	"context"
	"net"
	"time"

	"chainhealth/internal/config"
	domainService "chainhealth/internal/domain/service"

	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.ReachabilityProber = (*ReachabilityProber)(nil)

// HostResolver matches the signature of net.Resolver.LookupHost.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ReachabilityProber resolves endpoint hostnames under a hard timeout. It keeps no state.
type ReachabilityProber struct {
	resolver HostResolver
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReachabilityProber creates a prober. A nil resolver uses net.DefaultResolver.
func NewReachabilityProber(cfg config.ProberConfig, resolver HostResolver, logger *zap.Logger) *ReachabilityProber {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &ReachabilityProber{
		resolver: resolver,
		timeout:  cfg.GetDNSTimeout(),
		logger:   logger.Named("ReachabilityProber"),
	}
}

// Reachable reports whether hostname resolves before the DNS timeout elapses.
func (r *ReachabilityProber) Reachable(ctx context.Context, hostname string) bool {
	if hostname == "" {
		return false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type lookupResult struct {
		addrs []string
		err   error
	}
	done := make(chan lookupResult, 1)
	go func() {
		addrs, err := r.resolver.LookupHost(lookupCtx, hostname)
		done <- lookupResult{addrs: addrs, err: err}
	}()

	select {
	case <-lookupCtx.Done():
		r.logger.Debug("DNS lookup timed out",
			zap.String("host", hostname), zap.Duration("timeout", r.timeout), zap.Error(lookupCtx.Err()),
		)
		return false
	case res := <-done:
		if res.err != nil {
			r.logger.Debug("DNS lookup failed", zap.String("host", hostname), zap.Error(res.err))
			return false
		}
		return len(res.addrs) > 0
	}
}
