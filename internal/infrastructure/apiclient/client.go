// Package apiclient talks to the REST backend the back-office fronts.
// Every call returns the decoded response body or an *APIError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig configures retry behavior of idempotent requests
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// Client is the HTTP collaborator of the cache layer
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	retry      RetryConfig
	limiter    *rate.Limiter
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	userAgent  string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry replaces the retry configuration
func WithRetry(rc RetryConfig) Option {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithMetrics records every upstream request
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the configured backend
func New(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryBackoff > 0 {
		retry.RetryDelay = cfg.RetryBackoff
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:   base,
		retry:     retry,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    zap.NewNop(),
		userAgent: "ERP-Backoffice/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get fetches path. GETs are retried on transport errors, 5xx and 429.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil, params)
}

// Post sends body to path. Mutations are never retried.
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body, nil)
}

// Put sends body to path
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body, nil)
}

// Delete deletes path
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do executes one request, retrying idempotent ones
func (c *Client) Do(ctx context.Context, method, path string, body any, params url.Values) (*Envelope, error) {
	u := c.buildURL(path, params)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	ctx, span := telemetry.StartClientSpan(ctx, "backend "+method,
		attribute.String("http.request.method", method),
		attribute.String("url.path", u.Path),
	)
	defer span.End()

	maxRetries := 0
	if method == http.MethodGet {
		maxRetries = c.retry.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		env, err := c.once(ctx, method, u, payload)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
		logger.L(ctx).Debug("Retrying backend request",
			zap.String("method", method),
			zap.String("path", u.Path),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	telemetry.RecordError(span, lastErr)
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method string, u *url.URL, payload []byte) (*Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := BearerToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		req.Header.Set(logger.RequestIDHeader, requestID)
	}
	if lang := AcceptLanguage(ctx); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest(method, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Code: CodeNetwork, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.UpstreamRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, &APIError{Status: resp.StatusCode, Code: CodeNetwork, Message: "reading response body: " + err.Error(), cause: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseAPIError(resp.StatusCode, raw)
	}
	return &Envelope{Status: resp.StatusCode, Data: raw}, nil
}

// buildURL joins the base URL, path and query parameters
func (c *Client) buildURL(path string, params url.Values) *url.URL {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return &u
}

// backoff returns the jittered delay before retry attempt
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.retry.RetryDelay) * math.Pow(c.retry.Multiplier, float64(attempt-1))
	if max := float64(c.retry.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	jitter := delay * 0.25
	return time.Duration(delay + (rand.Float64()*2-1)*jitter)
}

// retryable reports whether a failed GET is worth repeating
func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNetwork ||
		apiErr.Status >= http.StatusInternalServerError ||
		apiErr.Status == http.StatusTooManyRequests
}

type tokenKey struct{}
type languageKey struct{}

// WithBearerToken stores the caller's token so requests made on its behalf
// carry it to the backend
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// BearerToken returns the token stored by WithBearerToken
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// WithAcceptLanguage forwards the caller's language preference
func WithAcceptLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey{}, lang)
}

// AcceptLanguage returns the language stored by WithAcceptLanguage
func AcceptLanguage(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey{}).(string)
	return lang
}
