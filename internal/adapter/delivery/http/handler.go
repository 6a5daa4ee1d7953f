package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chainhealth/internal/application/port"
	"chainhealth/internal/domain"
	"chainhealth/internal/domain/entity"
	"chainhealth/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ChainHandler exposes the chain health service over HTTP.
type ChainHandler struct {
	service port.ChainHealthService
	logger  *zap.Logger
}

func NewChainHandler(service port.ChainHealthService, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{
		service: service,
		logger:  logger.Named("ChainHandler"),
	}
}

// ListChains handles GET /chains.
func (h *ChainHandler) ListChains(ctx *fasthttp.RequestCtx) {
	chains, err := h.service.ListChains(ctx)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, ChainsResponse{Chains: chains, Count: len(chains)})
}

// GetHealth handles GET /chains/{chain}/health.
func (h *ChainHandler) GetHealth(ctx *fasthttp.RequestCtx) {
	entry, err := h.service.GetOrSelect(ctx, chainParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, toHealthResponse(entry))
}

// SelectEndpoint handles GET /chains/{chain}/endpoints/{kind}.
func (h *ChainHandler) SelectEndpoint(ctx *fasthttp.RequestCtx) {
	rawKind, _ := ctx.UserValue("kind").(string)
	kind, err := entity.ParseKind(rawKind)
	if err != nil {
		h.writeError(ctx, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
		return
	}

	endpoint, err := h.service.Select(ctx, chainParam(ctx), kind)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, toEndpointResponse(endpoint, kind))
}

// Refresh handles POST /chains/{chain}/refresh.
func (h *ChainHandler) Refresh(ctx *fasthttp.RequestCtx) {
	entry, err := h.service.Refresh(ctx, chainParam(ctx))
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	h.writeJSON(ctx, fasthttp.StatusOK, toHealthResponse(entry))
}

// Invalidate handles DELETE /chains/{chain}/health.
func (h *ChainHandler) Invalidate(ctx *fasthttp.RequestCtx) {
	h.service.Invalidate(ctx, chainParam(ctx))
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

// chainParam rebuilds the chain identifier, re-adding the testnets/ prefix stripped by routing.
func chainParam(ctx *fasthttp.RequestCtx) string {
	chain, _ := ctx.UserValue("chain").(string)
	if testnet, _ := ctx.UserValue(testnetKey).(bool); testnet {
		return "testnets/" + chain
	}
	return chain
}

func (h *ChainHandler) writeError(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		status = fasthttp.StatusBadRequest
	case errors.Is(err, domain.ErrChainNotFound):
		status = fasthttp.StatusNotFound
	case errors.Is(err, domain.ErrCatalogUnavailable):
		status = fasthttp.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = fasthttp.StatusGatewayTimeout
	}

	if status >= fasthttp.StatusInternalServerError {
		h.logger.Error("Request failed", zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.ByteString("uri", ctx.RequestURI()), zap.Error(err))
	}
	h.writeJSON(ctx, status, ErrorResponse{Error: err.Error()})
}

func (h *ChainHandler) writeJSON(ctx *fasthttp.RequestCtx, status int, body interface{}) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	if err := json.NewEncoder(ctx).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
