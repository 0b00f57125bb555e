// Package apiclient issues authenticated requests against the billing REST
// API and normalizes every response into a Result.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

const (
	defaultTimeout = 30 * time.Second

	// TokenHeader carries the session token on every authenticated call.
	TokenHeader = "x-auth-token"
)

var apiTracer = otel.Tracer("ace.internal.apiclient")

var (
	// ErrUnauthorized is returned for any 401. The session has already been
	// expired through the unauthorized hook when the caller sees it.
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	// ErrRequestFailed marks transport failures and application errors.
	ErrRequestFailed = errors.New("apiclient: request failed")
)

// Error is a failed call with the server (or transport) message. Code is
// zero when no response was received; Err then holds the transport cause.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("apiclient: %s", e.Message)
	}
	return fmt.Sprintf("apiclient: status %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRequestFailed}
	}
	return []error{ErrRequestFailed, e.Err}
}

// Transport reports whether the call failed before any response arrived.
func (e *Error) Transport() bool { return e.Code == 0 }

// TokenSource supplies the current session token.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	RateBurst  int
	HTTPClient *http.Client
	Metrics    *metrics.APIMetrics
	Logger     *logging.Logger
}

// Client is the single HTTP entry point shared by every store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.APIMetrics
	logger     *logging.Logger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func(context.Context)
}

// New constructs a billing API client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    opts.Metrics,
		logger:     logger.Component("apiclient"),
	}
}

// SetTokenSource installs the source of the x-auth-token header.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

// OnUnauthorized installs the hook run on every 401 before ErrUnauthorized
// is returned.
func (c *Client) OnUnauthorized(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

type requestConfig struct {
	operation   string
	contentType string
	accept      string
	withAuth    bool
	token       string
}

// RequestOption tweaks a single request.
type RequestOption func(*requestConfig)

// WithOperation names the call for metrics, traces and logs.
func WithOperation(name string) RequestOption {
	return func(rc *requestConfig) { rc.operation = name }
}

// WithoutAuth omits the token header (login).
func WithoutAuth() RequestOption {
	return func(rc *requestConfig) { rc.withAuth = false }
}

// WithToken overrides the token source for one call.
func WithToken(token string) RequestOption {
	return func(rc *requestConfig) { rc.token = token }
}

// WithAccept sets the Accept header.
func WithAccept(accept string) RequestOption {
	return func(rc *requestConfig) { rc.accept = accept }
}

// Get issues a GET.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (Result, error) {
	return c.Do(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (Result, error) {
	return c.Do(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (Result, error) {
	return c.Do(ctx, http.MethodPut, path, body, opts...)
}

// Delete issues a DELETE with an optional JSON body.
func (c *Client) Delete(ctx context.Context, path string, body any, opts ...RequestOption) (Result, error) {
	return c.Do(ctx, http.MethodDelete, path, body, opts...)
}

// Do performs a JSON request and normalizes the response. The returned Result
// is populated even when err is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (Result, error) {
	rc := c.config(method, opts)
	resp, raw, err := c.roundTrip(ctx, method, path, body, rc)
	if err != nil {
		return Result{Message: err.Error()}, err
	}
	res := normalize(resp.StatusCode, raw)
	if res.Status {
		return res, nil
	}
	return res, c.failure(ctx, rc, path, res)
}

// Binary is a raw (non-JSON) response body.
type Binary struct {
	ContentType string
	Body        []byte
}

// Download fetches a binary payload (arraybuffer semantics). Non-2xx answers
// are normalized like Do.
func (c *Client) Download(ctx context.Context, path string, opts ...RequestOption) (*Binary, error) {
	rc := c.config(http.MethodGet, opts)
	if rc.accept == "" {
		rc.accept = "*/*"
	}
	resp, raw, err := c.roundTrip(ctx, http.MethodGet, path, nil, rc)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.failure(ctx, rc, path, normalize(resp.StatusCode, raw))
	}
	return &Binary{ContentType: resp.Header.Get("Content-Type"), Body: raw}, nil
}

func (c *Client) config(method string, opts []RequestOption) requestConfig {
	rc := requestConfig{
		operation:   strings.ToLower(method),
		contentType: "application/json",
		accept:      "application/json",
		withAuth:    true,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}

func (c *Client) failure(ctx context.Context, rc requestConfig, path string, res Result) error {
	if res.Code == http.StatusUnauthorized {
		c.metrics.ObserveUnauthorized()
		c.logger.Warn("session rejected by billing API", "operation", rc.operation, "path", path)
		c.mu.RLock()
		hook := c.onUnauthorized
		c.mu.RUnlock()
		if hook != nil {
			hook(ctx)
		}
		return ErrUnauthorized
	}
	c.logger.Warn("billing API returned failure", "operation", rc.operation, "status", res.Code, "path", path, "message", res.Message)
	return &Error{Code: res.Code, Message: res.Message}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any, rc requestConfig) (*http.Response, []byte, error) {
	ctx, span := apiTracer.Start(ctx, "apiclient."+rc.operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("ace.api.path", path),
	)

	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.ObserveRequest(rc.operation, method, outcome, time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return nil, nil, &Error{Message: fmt.Sprintf("rate limit wait: %v", err), Err: err}
		}
	}

	var bodyReader io.Reader
	if body != nil && method != http.MethodGet {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, &Error{Message: fmt.Sprintf("marshal request: %v", err)}
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, &Error{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", rc.accept)
	if bodyReader != nil {
		req.Header.Set("Content-Type", rc.contentType)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if rc.withAuth {
		token := rc.token
		if token == "" {
			c.mu.RLock()
			if c.tokens != nil {
				token = c.tokens.Token()
			}
			c.mu.RUnlock()
		}
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Warn("billing API unreachable", "operation", rc.operation, "path", path, "error", err)
		return nil, nil, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &Error{Code: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		outcome = "unauthorized"
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		outcome = "ok"
	default:
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, raw, nil
}
