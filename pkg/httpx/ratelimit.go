package httpx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the client-side rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultRateLimit keeps an interactive client well under the storefront's
// tolerance while never being noticeable to a person at a terminal.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 120,
	Window:            time.Minute,
	Burst:             20,
}

// Enabled reports whether the config describes an actual limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// Limit converts the window-based config into a token bucket rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if !c.Enabled() {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// NewLimiter builds a token bucket from the config. A disabled config yields
// a limiter that never blocks.
func NewLimiter(c RateLimitConfig) *rate.Limiter {
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(c.Limit(), burst)
}

// LimitTransport delays outbound requests so they never exceed Limiter.
// It waits on the request context, so a cancelled request stops waiting.
type LimitTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// NewLimitTransport wraps base (http.DefaultTransport when nil).
func NewLimitTransport(base http.RoundTripper, c RateLimitConfig) *LimitTransport {
	return &LimitTransport{Base: base, Limiter: NewLimiter(c)}
}

func (t *LimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	r := t.Limiter.Reserve()
	if !r.OK() {
		return nil, fmt.Errorf("rate limit wait: burst of %d cannot admit a request", t.Limiter.Burst())
	}
	if delay := r.Delay(); delay > 0 {
		slogx.FromContext(ctx).Debug("rate limit: delaying request",
			"path", req.URL.Path,
			"delay_ms", delay.Milliseconds(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return nil, fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
