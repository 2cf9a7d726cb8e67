// Package transport executes request descriptors against an OData service over
// HTTP and fetches the service's $metadata document.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/odata/internal/metacache"
	"github.com/conduit-lang/odata/internal/request"
)

const metadataSegment = "$metadata"

// Client sends requests to one OData service
type Client struct {
	root     *url.URL
	http     *http.Client
	logger   *zap.Logger
	cache    metacache.Store
	cacheTTL time.Duration
	header   http.Header
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetadataCache enables read-through caching of the $metadata document
func WithMetadataCache(store metacache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithHeader adds a header to every request, e.g. Authorization
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// New creates a client for the service at root
func New(root string, opts ...Option) (*Client, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceRoot, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidServiceRoot, root)
	}

	c := &Client{
		root:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the service root URL
func (c *Client) Root() *url.URL {
	u := *c.root
	return &u
}

// Response is a completed HTTP exchange
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ETag returns the entity tag of the response, if any
func (r *Response) ETag() string {
	return r.Header.Get("ETag")
}

// Decode unmarshals a JSON response body into v
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return io.EOF
	}
	return json.Unmarshal(r.Body, v)
}

// FetchMetadata returns the service's $metadata document, from the cache when present
func (c *Client) FetchMetadata(ctx context.Context) ([]byte, error) {
	key := c.root.String()

	if c.cache != nil {
		doc, err := c.cache.Get(ctx, key)
		if err == nil {
			c.logger.Debug("metadata cache hit", zap.String("service", key))
			return doc, nil
		}
		if metacache.IsCacheMiss(err) {
			c.logger.Debug("metadata cache miss", zap.String("service", key))
		} else {
			c.logger.Warn("metadata cache read failed", zap.String("service", key), zap.Error(err))
		}
	}

	target, err := request.ResolveURL(c.root, metadataSegment)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, resp.Body, c.cacheTTL); err != nil {
			c.logger.Warn("metadata cache write failed", zap.String("service", key), zap.Error(err))
		}
	}
	return resp.Body, nil
}

// InvalidateMetadata drops the cached $metadata document
func (c *Client) InvalidateMetadata(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, c.root.String())
}

// Do executes d. etag is sent as If-Match when d requires a concurrency
// precondition; an empty etag sends "*".
func (c *Client) Do(ctx context.Context, d *request.Descriptor, etag string) (*Response, error) {
	if d.Batched {
		return nil, fmt.Errorf("%s was queued into a batch; send the batch instead", d)
	}

	target, err := request.ResolveURL(c.root, d.Path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, target.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if len(d.Body) > 0 && d.ContentType != "" {
		req.Header.Set("Content-Type", d.ContentType)
	}
	if d.RequiresConcurrencyPrecondition {
		if etag == "" {
			etag = "*"
		}
		req.Header.Set("If-Match", etag)
	}
	if prefer := request.Prefer(d); prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	return c.send(req)
}

// DoBatch sends a finalized $batch request
func (c *Client) DoBatch(ctx context.Context, req *http.Request) (*Response, error) {
	return c.send(req.WithContext(ctx))
}

func (c *Client) send(req *http.Request) (*Response, error) {
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("DataServiceVersion") == "" {
		req.Header.Set("DataServiceVersion", request.ProtocolVersion)
		req.Header.Set("MaxDataServiceVersion", request.ProtocolVersion)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       data,
		}
		c.logger.Warn("unexpected status", zap.String("method", req.Method), zap.String("url", req.URL.String()), zap.Int("status", resp.StatusCode))
		return nil, serr
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
