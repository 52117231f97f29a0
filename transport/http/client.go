// Package http is the request client every backend call goes through.
// It attaches the session's bearer token, unwraps response envelopes,
// caches reads marked cacheable and recovers from expired access tokens
// by refreshing once and replaying the request.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/folio/core"
)

const (
	// DefaultTimeout bounds every request, refresh included
	DefaultTimeout = 15 * time.Second

	// DefaultCacheTTL applies to cacheable reads without an explicit TTL
	DefaultCacheTTL = 30 * time.Second

	// DefaultRefreshPath is the token refresh endpoint
	DefaultRefreshPath = "/auth/refresh"

	maxResponseSize = 10 << 20
)

// DefaultAuthPaths are the path prefixes whose 401s are never refreshed
var DefaultAuthPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/wallet/",
}

// SessionStore is the part of the session store the client needs
type SessionStore interface {
	BearerToken() string
	RefreshToken() string
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	Clear(ctx context.Context, reason string) error
}

// Config holds client configuration
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RefreshPath string
	AuthPaths   []string
	HTTPClient  *http.Client
}

// Client sends requests to the backend
type Client struct {
	baseURL     string
	httpClient  *http.Client
	sessions    SessionStore
	cache       *responseCache
	cacheTTL    time.Duration
	refreshPath string
	authPaths   []string

	mu    sync.Mutex
	cycle *refreshCycle // non-nil while a refresh is in flight
}

// New creates a new request client
func New(cfg Config, sessions SessionStore) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		if copied.Timeout == 0 {
			copied.Timeout = timeout
		}
		httpClient = &copied
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}

	refreshPath := cfg.RefreshPath
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}

	authPaths := cfg.AuthPaths
	if authPaths == nil {
		authPaths = DefaultAuthPaths
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		sessions:    sessions,
		cache:       newResponseCache(cacheTTL),
		cacheTTL:    cacheTTL,
		refreshPath: refreshPath,
		authPaths:   authPaths,
	}, nil
}

// RequestOption configures a single request
type RequestOption func(*request)

// WithCache serves the GET from cache while the entry is younger than ttl.
// A zero ttl uses the client default.
func WithCache(ttl time.Duration) RequestOption {
	return func(r *request) {
		r.cache = true
		r.ttl = ttl
	}
}

// WithQuery sets the query parameters
func WithQuery(query url.Values) RequestOption {
	return func(r *request) { r.query = query }
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	cache   bool
	ttl     time.Duration
	retried bool
}

func (r *request) target() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// Get sends a GET and decodes the unwrapped payload into out
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, newRequest(http.MethodGet, path, nil, opts), out)
}

// Post sends a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, newRequest(http.MethodPost, path, body, opts), out)
}

// Put sends a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, newRequest(http.MethodPut, path, body, opts), out)
}

// Patch sends a PATCH with a JSON body
func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, newRequest(http.MethodPatch, path, body, opts), out)
}

// Delete sends a DELETE
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, newRequest(http.MethodDelete, path, nil, opts), out)
}

// GetAs is Get returning a typed value
func GetAs[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	var out T
	err := c.Get(ctx, path, &out, opts...)
	return out, err
}

// PostAs is Post returning a typed value
func PostAs[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	var out T
	err := c.Post(ctx, path, body, &out, opts...)
	return out, err
}

// ResetCache drops every cached response
func (c *Client) ResetCache() {
	c.cache.flush()
}

func newRequest(method, path string, body any, opts []RequestOption) *request {
	r := &request{method: method, path: path, body: body}
	for _, opt := range opts {
		opt(r)
	}
	// only reads are cacheable
	if method != http.MethodGet {
		r.cache = false
	}
	return r
}

func (c *Client) do(ctx context.Context, r *request, out any) error {
	var key string
	if r.cache {
		key = cacheKey(r.path, r.query)
		if data, ok := c.cache.get(key); ok {
			slogctx.Debug(ctx, "Serving cached response", "path", r.path)
			return decode(data, out)
		}
	}

	data, err := c.execute(ctx, r)
	if err != nil {
		return err
	}
	if err := decode(data, out); err != nil {
		return err
	}

	if r.cache {
		ttl := r.ttl
		if ttl <= 0 {
			ttl = c.cacheTTL
		}
		c.cache.set(key, data, ttl)
	}
	return nil
}

// execute sends r and runs refresh-and-replay on an eligible 401
func (c *Client) execute(ctx context.Context, r *request) (json.RawMessage, error) {
	token := c.sessions.BearerToken()

	raw, err := c.send(ctx, r, token, nil)
	if err != nil {
		if !c.shouldRefresh(r, err) {
			return nil, err
		}
		raw, err = c.recoverUnauthorized(ctx, r, token, err)
		if err != nil {
			return nil, err
		}
	}

	return unwrap(raw)
}

func (c *Client) shouldRefresh(r *request, err error) bool {
	if r.retried || !errors.Is(err, core.ErrUnauthorized) {
		return false
	}
	if c.isAuthPath(r.path) {
		return false
	}
	// nothing to refresh for anonymous or fallback sessions
	return c.sessions.BearerToken() != ""
}

func (c *Client) isAuthPath(path string) bool {
	for _, prefix := range c.authPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// send performs one round trip. It never refreshes; the refresh call goes
// through here directly. onWritten runs once the request is on the wire.
func (c *Client) send(ctx context.Context, r *request, token string, onWritten func()) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	if onWritten != nil {
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			WroteRequest: func(httptrace.WroteRequestInfo) { onWritten() },
		})
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.target(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slogctx.Debug(ctx, "Backend request failed", "method", r.method, "path", r.path, "error", err)
		return nil, &core.RequestError{Kind: core.KindNetwork, Method: r.method, Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &core.RequestError{Kind: core.KindNetwork, Method: r.method, Path: r.path, Status: resp.StatusCode, Err: err}
	}

	slogctx.Debug(ctx, "Backend request",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(r, resp.StatusCode, raw)
	}
	return raw, nil
}

func decode(data json.RawMessage, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
