package provider

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled one token per refillInterval up to
// maxTokens. A limiter with zero tokens never admits a call.
type RateLimiter struct {
	mu             sync.Mutex
	tokens         int
	maxTokens      int
	refillInterval time.Duration
	lastRefill     time.Time
	now            func() time.Time
}

func NewRateLimiter(maxTokens int, refillInterval time.Duration) *RateLimiter {
	if refillInterval <= 0 {
		refillInterval = time.Second
	}
	return &RateLimiter{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
		now:            time.Now,
	}
}

// Wait takes a token, sleeping until the next refill while the bucket is
// empty. It returns ctx.Err() if ctx ends first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		delay, ok := r.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token or reports how long until the next one.
func (r *RateLimiter) take() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if n := int(now.Sub(r.lastRefill) / r.refillInterval); n > 0 {
		r.tokens = min(r.tokens+n, r.maxTokens)
		r.lastRefill = r.lastRefill.Add(time.Duration(n) * r.refillInterval)
	}
	if r.tokens > 0 {
		r.tokens--
		return 0, true
	}
	return r.lastRefill.Add(r.refillInterval).Sub(now), false
}

// HostLimiter keeps one bucket per URL host so slow feeds on one site do not
// starve the others.
type HostLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*RateLimiter
	max      int
	interval time.Duration
}

func NewHostLimiter(maxTokens int, refillInterval time.Duration) *HostLimiter {
	return &HostLimiter{
		buckets:  make(map[string]*RateLimiter),
		max:      maxTokens,
		interval: refillInterval,
	}
}

func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return h.bucket(hostOf(rawURL)).Wait(ctx)
}

func (h *HostLimiter) bucket(host string) *RateLimiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buckets[host]
	if !ok {
		b = NewRateLimiter(h.max, h.interval)
		h.buckets[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
