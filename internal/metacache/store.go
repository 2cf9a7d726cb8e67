// Package metacache stores raw service metadata documents so that sessions can
// skip the $metadata round trip. Only metadata is cached; response data never is.
package metacache

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Store defines the interface for all metadata cache backends.
// Keys are service root URLs.
type Store interface {
	// Get retrieves the cached document for a service root
	Get(ctx context.Context, serviceRoot string) ([]byte, error)

	// Set stores a document with a TTL; zero uses the backend default, negative never expires
	Set(ctx context.Context, serviceRoot string, document []byte, ttl time.Duration) error

	// Delete removes the document for a service root
	Delete(ctx context.Context, serviceRoot string) error

	// Clear removes every cached document
	Clear(ctx context.Context) error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to keys by backends with a shared keyspace
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 24 * time.Hour,
		Prefix:     "odata:metadata:",
	}
}

// ErrCacheMiss is returned when no document is cached for a service root
type ErrCacheMiss struct {
	ServiceRoot string
}

func (e ErrCacheMiss) Error() string {
	return "metadata cache miss: " + e.ServiceRoot
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Key normalizes a service root so that "HTTP://Host/svc/" and "http://host/svc"
// share one entry. Unparseable roots are used as-is without trailing slashes.
func Key(serviceRoot string) string {
	root := strings.TrimRight(strings.TrimSpace(serviceRoot), "/")
	u, err := url.Parse(root)
	if err != nil || u.Host == "" {
		return root
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl < 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
