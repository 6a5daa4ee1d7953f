package application

import (
	"context"
	"errors"
	"time"

	"chainhealth/internal/application/port"
	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"
	domainService "chainhealth/internal/domain/service"

	"go.uber.org/zap"
)

var errUnreachable = errors.New("host did not resolve")

// Selector picks the first healthy endpoint of a kind, in declared order.
type Selector struct {
	catalog      domainRepo.CatalogRepository
	unhealthy    domainRepo.UnhealthyRepository
	reachability domainService.ReachabilityProber
	liveness     domainService.LivenessProber
	observer     port.Observer
	now          func() time.Time
	logger       *zap.Logger
}

// NewSelector creates a selector. A nil observer discards events.
func NewSelector(
	catalog domainRepo.CatalogRepository,
	unhealthy domainRepo.UnhealthyRepository,
	reachability domainService.ReachabilityProber,
	liveness domainService.LivenessProber,
	observer port.Observer,
	logger *zap.Logger,
) *Selector {
	if observer == nil {
		observer = port.NopObserver{}
	}
	return &Selector{
		catalog:      catalog,
		unhealthy:    unhealthy,
		reachability: reachability,
		liveness:     liveness,
		observer:     observer,
		now:          time.Now,
		logger:       logger.Named("Selector"),
	}
}

// Select returns the first healthy endpoint of kind for chain, or entity.Unknown.
// Only catalog failures are returned as errors.
func (s *Selector) Select(ctx context.Context, chain string, kind entity.Kind) (entity.Endpoint, error) {
	c, err := s.catalog.GetChain(ctx, chain)
	if err != nil {
		return entity.Unknown, err
	}
	return s.SelectFrom(ctx, c, kind), nil
}

// SelectFrom runs the search over the declared candidates of c.
func (s *Selector) SelectFrom(ctx context.Context, c entity.Chain, kind entity.Kind) entity.Endpoint {
	start := s.now()
	candidates := c.Endpoints(kind)

	if !s.liveness.Supports(kind) {
		s.logger.Debug("No liveness probe for kind, nothing can be selected",
			zap.String("chain", c.Name), zap.String("kind", string(kind)),
		)
		s.observer.ObserveSelection(kind, false, s.now().Sub(start))
		return entity.Unknown
	}

	for i, candidate := range candidates {
		if ctx.Err() != nil {
			s.logger.Debug("Selection abandoned by caller",
				zap.String("chain", c.Name), zap.String("kind", string(kind)), zap.Int("remaining", len(candidates)-i),
			)
			break
		}

		if s.unhealthy.IsSuppressed(candidate.Address) {
			s.logger.Debug("Skipping suppressed endpoint", zap.String("address", candidate.Address.String()))
			s.observer.ObserveSuppressedSkip(kind)
			continue
		}

		verdict := s.evaluate(ctx, candidate)
		s.observer.ObserveVerdict(verdict)
		if verdict.Healthy {
			s.logger.Info("Selected endpoint",
				zap.String("chain", c.Name),
				zap.String("kind", string(kind)),
				zap.String("address", candidate.Address.String()),
				zap.String("provider", candidate.Provider),
				zap.Int("position", i),
			)
			s.observer.ObserveSelection(kind, true, s.now().Sub(start))
			return candidate
		}

		fields := []zap.Field{
			zap.String("chain", c.Name),
			zap.String("address", candidate.Address.String()),
			zap.String("reason", string(verdict.Reason)),
		}
		if verdict.HasBlockTime() {
			fields = append(fields, zap.Duration("blockAge", s.now().Sub(verdict.LatestBlockTime)))
		}
		s.logger.Debug("Candidate rejected", fields...)
	}

	s.logger.Info("No healthy endpoint found",
		zap.String("chain", c.Name), zap.String("kind", string(kind)), zap.Int("candidates", len(candidates)),
	)
	s.observer.ObserveSelection(kind, false, s.now().Sub(start))
	return entity.Unknown
}

// evaluate runs the scheme policy, then reachability, then liveness.
func (s *Selector) evaluate(ctx context.Context, candidate entity.Endpoint) entity.ProbeVerdict {
	verdict := entity.ProbeVerdict{Address: candidate.Address, Kind: candidate.Kind}

	if !candidate.Address.IsSecure() {
		verdict.Reason = entity.ReasonInsecureScheme
		verdict.CheckedAt = s.now()
		return verdict
	}

	host, err := candidate.Address.Hostname()
	if err == nil && !s.reachability.Reachable(ctx, host) {
		err = errUnreachable
	}
	if err != nil {
		verdict.CheckedAt = s.now()
		verdict.Err = err
		if ctx.Err() != nil {
			verdict.Reason = entity.ReasonCancelled
			return verdict
		}
		verdict.Reason = entity.ReasonUnreachableHost
		s.unhealthy.Suppress(candidate.Address)
		return verdict
	}

	return s.liveness.Probe(ctx, candidate)
}
