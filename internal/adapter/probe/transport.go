package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chainhealth/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// JSONRPCRequest defines the structure of an outgoing JSON-RPC call.
type JSONRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// JSONRPCResponse defines the basic structure for a JSON-RPC response.
type JSONRPCResponse struct {
	ID      interface{}     `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError defines the structure for a JSON-RPC error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// jsonRPCCaller issues JSON-RPC calls against one endpoint and returns the raw result.
type jsonRPCCaller interface {
	Call(ctx context.Context, method string, params ...interface{}) ([]byte, error)
	Close() error
}

// httpTransport performs plain HTTP exchanges with fasthttp, bounded by the context deadline.
type httpTransport struct {
	client *fasthttp.Client
	logger *zap.Logger
}

func newHTTPTransport(timeout time.Duration, tlsConfig *tls.Config, logger *zap.Logger) *httpTransport {
	return &httpTransport{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			TLSConfig:    tlsConfig,
		},
		logger: logger,
	}
}

type httpResult struct {
	status int
	body   []byte
	err    error
}

// do executes a request and returns a copy of the body of a 200 response.
// The exchange is abandoned as soon as ctx is done.
func (t *httpTransport) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(t.client.ReadTimeout)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	done := make(chan httpResult, 1)
	go func() {
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		err := t.client.DoDeadline(req, resp, deadline)
		res := httpResult{err: err}
		if err == nil {
			res.status = resp.StatusCode()
			res.body = append([]byte(nil), resp.Body()...)
		}
		done <- res
	}()

	var res httpResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}

	if res.err != nil {
		if errors.Is(res.err, fasthttp.ErrTimeout) || errors.Is(res.err, fasthttp.ErrDialTimeout) {
			t.logger.Debug("HTTP probe timed out", zap.String("url", url), zap.Error(res.err))
			return nil, fmt.Errorf("%w: http request to %s timed out: %v", apperrors.ErrTimeout, url, res.err)
		}
		t.logger.Debug("HTTP probe request failed", zap.String("url", url), zap.Error(res.err))
		return nil, fmt.Errorf("%w: http request to %s failed: %v",
			apperrors.ErrExternalServiceFailure, url, res.err,
		)
	}

	if res.status != fasthttp.StatusOK {
		t.logger.Debug("HTTP probe returned non-OK status", zap.String("url", url), zap.Int("statusCode", res.status))
		return nil, fmt.Errorf("%w: %s returned non-OK http status: %d",
			apperrors.ErrExternalServiceFailure, url, res.status,
		)
	}

	return res.body, nil
}

// Get fetches url.
func (t *httpTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return t.do(ctx, fasthttp.MethodGet, url, nil)
}

// httpCaller implements jsonRPCCaller with one POST per call.
type httpCaller struct {
	transport *httpTransport
	url       string
	nextID    int
}

func (c *httpCaller) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	c.nextID++
	payload, err := encodeCall(c.nextID, method, params)
	if err != nil {
		return nil, err
	}
	body, err := c.transport.do(ctx, fasthttp.MethodPost, c.url, payload)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(c.url, body)
}

func (c *httpCaller) Close() error { return nil }

// wsCaller implements jsonRPCCaller over a single websocket connection.
type wsCaller struct {
	conn   *websocket.Conn
	url    string
	nextID int
}

func dialWebsocket(ctx context.Context, url string, timeout time.Duration, tlsConfig *tls.Config) (*wsCaller, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  tlsConfig,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wss dial to %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("%w: wss dial to %s failed: %v", apperrors.ErrExternalServiceFailure, url, err)
	}
	return &wsCaller{conn: conn, url: url}, nil
}

func (c *wsCaller) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	c.nextID++
	payload, err := encodeCall(c.nextID, method, params)
	if err != nil {
		return nil, err
	}

	// Unblocks pending reads when the caller goes away.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, c.wrapErr(ctx, "write", err)
	}

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, c.wrapErr(ctx, "read", err)
	}
	return decodeEnvelope(c.url, message)
}

func (c *wsCaller) Close() error {
	return c.conn.Close()
}

func (c *wsCaller) wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("wss %s on %s: %w", op, c.url, ctxErr)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: wss %s on %s timed out: %v", apperrors.ErrTimeout, op, c.url, err)
	}
	return fmt.Errorf("%w: wss %s on %s failed: %v", apperrors.ErrExternalServiceFailure, op, c.url, err)
}

func encodeCall(id int, method string, params []interface{}) ([]byte, error) {
	if params == nil {
		params = []interface{}{}
	}
	return json.Marshal(JSONRPCRequest{Jsonrpc: "2.0", Method: method, Params: params, ID: id})
}

// decodeEnvelope returns the result of a successful JSON-RPC response.
func decodeEnvelope(url string, body []byte) ([]byte, error) {
	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("%w: %s returned invalid JSON-RPC response: %v", ErrMalformedResponse, url, err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: %s returned json-rpc error: %d %s",
			apperrors.ErrExternalServiceFailure, url, rpcResp.Error.Code, rpcResp.Error.Message,
		)
	}

	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return nil, fmt.Errorf("%w: %s returned an empty JSON-RPC result", ErrMalformedResponse, url)
	}

	return rpcResp.Result, nil
}
