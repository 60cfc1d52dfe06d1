package httpcache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainRateLimiter enforces a minimum delay between requests to the same host.
// It is safe for concurrent use from multiple goroutines.
type DomainRateLimiter struct {
	limiters map[string]*rate.Limiter
	override map[string]time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
	minDelay time.Duration
}

// NewDomainRateLimiter creates a limiter allowing one request per minDelay per host.
// A zero minDelay disables pacing.
func NewDomainRateLimiter(minDelay time.Duration, logger *slog.Logger) *DomainRateLimiter {
	return &DomainRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		override: make(map[string]time.Duration),
		logger:   logger,
		minDelay: minDelay,
	}
}

// SetDomainDelay overrides the minimum delay for host.
func (r *DomainRateLimiter) SetDomainDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.override[host] = delay
	delete(r.limiters, host)
}

// Wait blocks until a request to host is allowed or ctx is done.
func (r *DomainRateLimiter) Wait(ctx context.Context, host string) error {
	lim := r.limiter(host)
	if lim == nil {
		return nil
	}
	res := lim.Reserve()
	if d := res.Delay(); d > 0 {
		if r.logger != nil {
			r.logger.DebugContext(ctx, "rate limit pause", "domain", host, "wait", d.Round(time.Millisecond))
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			res.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

func (r *DomainRateLimiter) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[host]; ok {
		return lim
	}
	delay := r.minDelay
	if d, ok := r.override[host]; ok {
		delay = d
	}
	if delay <= 0 {
		return nil
	}
	lim := rate.NewLimiter(rate.Every(delay), 1)
	r.limiters[host] = lim
	return lim
}

// Transport wraps base so every request waits for its host's turn.
func (r *DomainRateLimiter) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &limitedTransport{base: base, limiter: r}
}

type limitedTransport struct {
	base    http.RoundTripper
	limiter *DomainRateLimiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.URL.Host); err != nil {
		// A RoundTripper must close the body even when it fails.
		if req.Body != nil {
			req.Body.Close() //nolint:errcheck // already failing
		}
		return nil, err
	}
	return t.base.RoundTrip(req)
}
