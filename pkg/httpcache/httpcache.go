// Package httpcache performs the single-shot HTTP requests used by the API
// extractors, with an optional persistent response cache.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"

	"github.com/codeGROOVE-dev/cpstats/pkg/profile"
)

// UserAgent is the browser User-Agent string sent by every fetcher.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

// maxBody bounds how much of a response is read.
const maxBody = 64 << 20

// Cacher allows external cache implementations for sharing across packages.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for HTTP response caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a Cache with disk persistence under the user cache directory.
func New(ttl time.Duration) (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(ttl, filepath.Join(cacheDir, "cpstats"))
}

// NewWithPath creates a Cache with disk persistence at cachePath.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("cpstats", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// RequestKey derives a cache key from the method, URL and body of a request.
func RequestKey(method, rawURL string, body []byte) string {
	sum := sha256.Sum256([]byte(method + " " + rawURL + "\n" + string(body)))
	return hex.EncodeToString(sum[:])
}

// HTTPError represents a non-success HTTP response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Unwrap lets callers match any HTTP failure with errors.Is(err, profile.ErrTransport).
func (*HTTPError) Unwrap() error { return profile.ErrTransport }

// FetchURL performs req once and returns the body of a 2xx response.
// When cache is non-nil, concurrent identical requests share one fetch and
// successful bodies are stored; failures are never cached.
func FetchURL(ctx context.Context, cache Cacher, client *http.Client, req *http.Request, logger *slog.Logger) ([]byte, error) {
	var reqBody []byte
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		reqBody, err = io.ReadAll(rc)
		rc.Close() //nolint:errcheck,gosec // in-memory body
		if err != nil {
			return nil, err
		}
	}

	if cache == nil {
		return doFetch(client, req, logger)
	}

	key := RequestKey(req.Method, req.URL.String(), reqBody)
	return cache.GetSet(ctx, key, func(ctx context.Context) ([]byte, error) {
		if logger != nil {
			logger.DebugContext(ctx, "cache miss", "url", req.URL.String())
		}
		return doFetch(client, req.Clone(ctx), logger)
	}, cache.TTL())
}

// PostJSON marshals payload, POSTs it to rawURL and returns the response body.
func PostJSON(ctx context.Context, cache Cacher, client *http.Client, rawURL string, payload any, logger *slog.Logger) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	return FetchURL(ctx, cache, client, req, logger)
}

func doFetch(client *http.Client, req *http.Request, logger *slog.Logger) ([]byte, error) {
	if logger != nil {
		logger.Debug("http request", "method", req.Method, "url", req.URL.String())
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrTransport, err)
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", profile.ErrTransport, req.URL.String(), err)
	}
	return body, nil
}
