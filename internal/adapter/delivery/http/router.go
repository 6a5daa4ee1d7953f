package http

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const testnetKey = "testnet"

// RegisterRoutes sets up the chain routes, the service health check and, when non-nil, /metrics.
func RegisterRoutes(r *router.Router, h *ChainHandler, metrics fasthttp.RequestHandler, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	r.GET("/chains", h.ListChains)
	for _, prefix := range []string{"/chains/{chain}", "/chains/testnets/{chain}"} {
		testnet := prefix != "/chains/{chain}"
		r.GET(prefix+"/health", withTestnet(testnet, h.GetHealth))
		r.DELETE(prefix+"/health", withTestnet(testnet, h.Invalidate))
		r.POST(prefix+"/refresh", withTestnet(testnet, h.Refresh))
		r.GET(prefix+"/endpoints/{kind}", withTestnet(testnet, h.SelectEndpoint))
	}

	logger.Info("Setting up health check route...")
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("OK")
	})

	if metrics != nil {
		r.GET("/metrics", metrics)
	}

	logger.Info("All routes registered.")
}

// LoggingMiddleware logs every request.
func LoggingMiddleware(next fasthttp.RequestHandler, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		logger.Info("Request handled",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("uri", ctx.RequestURI()),
			zap.Int("status", ctx.Response.StatusCode()),
		)
	}
}

func withTestnet(testnet bool, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if !testnet {
		return next
	}
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetUserValue(testnetKey, true)
		next(ctx)
	}
}
