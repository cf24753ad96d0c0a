package worker

import (
	"context"
	"testing"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1) // 100 rps, burst 1
	ctx := context.Background()

	if err := limiter.Wait(ctx, Key("openai", "gpt-4o-mini")); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different model should also work
	if err := limiter.Wait(ctx, Key("openai", "gpt-4o")); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_RateLimit(t *testing.T) {
	// 1 rps, burst 1
	limiter := NewLimiter(1, 1)
	ctx := context.Background()
	key := Key("anthropic", "claude")

	// First request ok
	if err := limiter.Wait(ctx, key); err != nil {
		t.Errorf("first wait failed: %v", err)
	}

	// Burst 1 means the token is consumed
	if limiter.Allow(key) {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}

	// Different key should be allowed
	if !limiter.Allow(Key("ollama", "llama3.1")) {
		t.Errorf("expected allow for other key")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatalf("request %d should pass with limiting disabled", i)
		}
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10) // fast default
	slow := Key("openai", "o1")

	limiter.SetRate(slow, 0.1, 1) // very slow

	// First request passes (burst 1)
	if !limiter.Allow(slow) {
		t.Errorf("first request should pass")
	}

	// Second request fails
	if limiter.Allow(slow) {
		t.Errorf("second request should fail")
	}

	// Other key still fast
	if !limiter.Allow(Key("openai", "gpt-4o-mini")) {
		t.Errorf("other key should pass")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	_ = limiter.Wait(context.Background(), "k")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx, "k"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
