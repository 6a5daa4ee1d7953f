package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"chainhealth/internal/config"
	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"
	domainRepo "chainhealth/internal/domain/repository"
	domainService "chainhealth/internal/domain/service"
	"chainhealth/internal/pkg/apperrors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.LivenessProber = (*LivenessProber)(nil)

const (
	rpcStatusPath   = "status"
	restLatestPath  = "cosmos/base/tendermint/v1beta1/blocks/latest"
	cometStatusCall = "status"
)

// LivenessProber judges endpoints by the freshness of the latest block they report.
// Failed probes are recorded in the unhealthy repository.
type LivenessProber struct {
	http      *httpTransport
	tlsConfig *tls.Config
	unhealthy domainRepo.UnhealthyRepository
	timeout   time.Duration
	threshold time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a LivenessProber.
type Option func(*LivenessProber)

// WithTLSConfig sets the TLS configuration used for https and wss probes.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(p *LivenessProber) { p.tlsConfig = tlsConfig }
}

// WithClock replaces the time source used for freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(p *LivenessProber) { p.now = now }
}

// NewLivenessProber creates a liveness prober. unhealthy may be nil to disable suppression.
func NewLivenessProber(
	cfg config.ProberConfig,
	unhealthy domainRepo.UnhealthyRepository,
	logger *zap.Logger,
	opts ...Option,
) *LivenessProber {
	p := &LivenessProber{
		unhealthy: unhealthy,
		timeout:   cfg.GetFetchTimeout(),
		threshold: config.FreshnessThreshold,
		now:       time.Now,
		logger:    logger.Named("LivenessProber"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.http = newHTTPTransport(p.timeout, p.tlsConfig, p.logger)
	return p
}

// Supports reports whether a probe exists for the kind. gRPC has none.
func (p *LivenessProber) Supports(kind entity.Kind) bool {
	switch kind {
	case entity.KindRPC, entity.KindREST, entity.KindEVM:
		return true
	default:
		return false
	}
}

// Probe fetches the latest block time of the endpoint and judges its freshness.
func (p *LivenessProber) Probe(ctx context.Context, endpoint entity.Endpoint) entity.ProbeVerdict {
	if !endpoint.Address.IsSecure() {
		p.logger.Debug("Rejecting endpoint with insecure scheme", zap.String("address", endpoint.Address.String()))
		return p.fail(endpoint, entity.ReasonInsecureScheme,
			fmt.Errorf("%w: %s does not use https or wss", apperrors.ErrInvalidInput, endpoint.Address),
			time.Time{},
		)
	}

	if !p.Supports(endpoint.Kind) {
		return p.fail(endpoint, entity.ReasonUnsupportedKind,
			fmt.Errorf("%w: %s", domain.ErrUnsupportedKind, endpoint.Kind),
			time.Time{},
		)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		blockTime time.Time
		err       error
	)
	switch endpoint.Kind {
	case entity.KindRPC:
		blockTime, err = p.rpcBlockTime(probeCtx, endpoint.Address)
	case entity.KindREST:
		blockTime, err = p.restBlockTime(probeCtx, endpoint.Address)
	case entity.KindEVM:
		blockTime, err = p.evmBlockTime(probeCtx, endpoint.Address)
	}

	if err != nil {
		return p.fail(endpoint, classify(ctx, err), err, time.Time{})
	}

	age := p.now().Sub(blockTime)
	if age >= p.threshold {
		return p.fail(endpoint, entity.ReasonStale,
			fmt.Errorf("latest block is %s old (threshold %s)", age.Truncate(time.Second), p.threshold),
			blockTime,
		)
	}

	p.logger.Debug("Endpoint is live",
		zap.String("address", endpoint.Address.String()),
		zap.String("kind", string(endpoint.Kind)),
		zap.Duration("blockAge", age),
	)
	return entity.ProbeVerdict{
		Address:         endpoint.Address,
		Kind:            endpoint.Kind,
		Healthy:         true,
		LatestBlockTime: blockTime,
		CheckedAt:       p.now(),
	}
}

func (p *LivenessProber) fail(endpoint entity.Endpoint, reason entity.Reason, err error, blockTime time.Time) entity.ProbeVerdict {
	p.logger.Debug("Endpoint failed liveness probe",
		zap.String("address", endpoint.Address.String()),
		zap.String("kind", string(endpoint.Kind)),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	if reason.Suppresses() && p.unhealthy != nil {
		p.unhealthy.Suppress(endpoint.Address)
	}
	return entity.ProbeVerdict{
		Address:         endpoint.Address,
		Kind:            endpoint.Kind,
		Reason:          reason,
		Err:             err,
		LatestBlockTime: blockTime,
		CheckedAt:       p.now(),
	}
}

func (p *LivenessProber) rpcBlockTime(ctx context.Context, address entity.Address) (time.Time, error) {
	if address.IsWebsocket() {
		caller, err := dialWebsocket(ctx, address.String(), p.timeout, p.tlsConfig)
		if err != nil {
			return time.Time{}, err
		}
		defer caller.Close()

		result, err := caller.Call(ctx, cometStatusCall)
		if err != nil {
			return time.Time{}, err
		}
		return RPCStatusParser.Parse(result)
	}

	body, err := p.http.Get(ctx, address.Join(rpcStatusPath))
	if err != nil {
		return time.Time{}, err
	}
	return RPCStatusParser.Parse(body)
}

func (p *LivenessProber) restBlockTime(ctx context.Context, address entity.Address) (time.Time, error) {
	if address.IsWebsocket() {
		return time.Time{}, fmt.Errorf("%w: REST endpoint %s cannot be a websocket", apperrors.ErrInvalidInput, address)
	}
	body, err := p.http.Get(ctx, address.Join(restLatestPath))
	if err != nil {
		return time.Time{}, err
	}
	return RESTLatestBlockParser.Parse(body)
}

// evmBlockTime asks for the latest block number, then for that block's header.
func (p *LivenessProber) evmBlockTime(ctx context.Context, address entity.Address) (time.Time, error) {
	var caller jsonRPCCaller
	if address.IsWebsocket() {
		ws, err := dialWebsocket(ctx, address.String(), p.timeout, p.tlsConfig)
		if err != nil {
			return time.Time{}, err
		}
		caller = ws
	} else {
		caller = &httpCaller{transport: p.http, url: address.String()}
	}
	defer caller.Close()

	numberResult, err := caller.Call(ctx, "eth_blockNumber")
	if err != nil {
		return time.Time{}, err
	}
	var numberHex string
	if err := json.Unmarshal(numberResult, &numberHex); err != nil {
		return time.Time{}, fmt.Errorf("%w: eth_blockNumber result is not a string: %v", ErrMalformedResponse, err)
	}
	number, err := decodeHexQuantity(numberHex)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: eth_blockNumber result %q: %v", ErrMalformedResponse, numberHex, err)
	}

	block, err := caller.Call(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return time.Time{}, err
	}
	return EVMBlockParser.Parse(block)
}

// classify maps a probe error to a verdict reason. A done parent context means the caller
// abandoned the probe, which is never a verdict about the endpoint.
func classify(parent context.Context, err error) entity.Reason {
	if parent.Err() != nil {
		return entity.ReasonCancelled
	}
	if errors.Is(err, ErrMalformedResponse) {
		return entity.ReasonMalformedResponse
	}
	if errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return entity.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return entity.ReasonTimeout
	}
	return entity.ReasonRequestFailed
}
