package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemory_EnforcesLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Limit: 3, Window: 15 * time.Minute})
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		res, err := m.Allow(context.Background(), "book:1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i-1 {
			t.Fatalf("request %d: remaining = %d, want %d", i, res.Remaining, 3-i-1)
		}
	}

	res, err := m.Allow(context.Background(), "book:1.2.3.4")
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth request should be denied")
	}
	wantReset := now.Add(15 * time.Minute)
	if !res.ResetAt.Equal(wantReset) {
		t.Fatalf("resetAt = %s, want %s", res.ResetAt, wantReset)
	}
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	m := NewMemory(Policy{Limit: 1, Window: time.Minute})

	if res, _ := m.Allow(context.Background(), "book:1.1.1.1"); !res.Allowed {
		t.Fatal("first key should be allowed")
	}
	if res, _ := m.Allow(context.Background(), "book:2.2.2.2"); !res.Allowed {
		t.Fatal("second key should not share the first key's count")
	}
	if res, _ := m.Allow(context.Background(), "book:1.1.1.1"); res.Allowed {
		t.Fatal("first key should now be over limit")
	}
}

func TestMemory_WindowResets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Limit: 1, Window: time.Minute})
	m.now = func() time.Time { return now }

	if res, _ := m.Allow(context.Background(), "k"); !res.Allowed {
		t.Fatal("first request should be allowed")
	}
	if res, _ := m.Allow(context.Background(), "k"); res.Allowed {
		t.Fatal("second request in window should be denied")
	}

	now = now.Add(61 * time.Second)
	if res, _ := m.Allow(context.Background(), "k"); !res.Allowed {
		t.Fatal("request after window expiry should be allowed")
	}
}

func TestMemory_SweepDropsExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Limit: 5, Window: time.Minute})
	m.now = func() time.Time { return now }

	_, _ = m.Allow(context.Background(), "old")
	now = now.Add(2 * time.Minute)
	_, _ = m.Allow(context.Background(), "fresh")

	m.Sweep()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets["old"]; ok {
		t.Fatal("expired bucket should have been swept")
	}
	if _, ok := m.buckets["fresh"]; !ok {
		t.Fatal("live bucket should survive the sweep")
	}
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	res := Result{ResetAt: now.Add(30 * time.Second)}
	if got := res.RetryAfter(now); got != 30*time.Second {
		t.Fatalf("RetryAfter = %s, want 30s", got)
	}
	if got := res.RetryAfter(now.Add(time.Minute)); got != 0 {
		t.Fatalf("RetryAfter past reset = %s, want 0", got)
	}
}
