package provider

import (
	"context"
	"testing"
	"time"
)

func fakeClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Fatalf("burst waits should return immediately")
	}
}

func TestRateLimiterTakeReportsDelay(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now, clock := fakeClock(base)
	limiter := NewRateLimiter(1, 10*time.Second)
	limiter.now = clock
	limiter.lastRefill = base

	if _, ok := limiter.take(); !ok {
		t.Fatal("expected first token")
	}
	*now = base.Add(4 * time.Second)
	delay, ok := limiter.take()
	if ok {
		t.Fatal("expected empty bucket")
	}
	if delay != 6*time.Second {
		t.Fatalf("expected 6s until refill, got %v", delay)
	}

	*now = base.Add(35 * time.Second)
	if _, ok := limiter.take(); !ok {
		t.Fatal("expected token after refill")
	}
	if _, ok := limiter.take(); ok {
		t.Fatal("refill must be capped at maxTokens")
	}
}

func TestRateLimiterHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(1, time.Second)
	ctx := context.Background()
	_ = limiter.Wait(ctx)

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := limiter.Wait(timeoutCtx); err == nil {
		t.Fatal("expected context deadline error")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatalf("wait should stop after context cancellation")
	}
}

func TestHostLimiterSeparatesHosts(t *testing.T) {
	h := NewHostLimiter(1, time.Hour)
	ctx := context.Background()

	if err := h.Wait(ctx, "https://feeds.example.com/markets.xml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Wait(ctx, "https://news.example.org/rss"); err != nil {
		t.Fatalf("other host should have its own bucket: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := h.Wait(cancelled, "https://FEEDS.example.com/tech.xml"); err == nil {
		t.Fatal("same host should share the exhausted bucket")
	}
	if got := hostOf("not a url"); got != "not a url" {
		t.Fatalf("unexpected host fallback %q", got)
	}
}
