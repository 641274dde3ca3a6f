package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window counter. Not persisted across
// restarts.
type Memory struct {
	policy  Policy
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemory(policy Policy) *Memory {
	return &Memory{
		policy:  policy,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b := m.buckets[key]
	if b == nil || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(m.policy.Window)}
		m.buckets[key] = b
		return Result{Allowed: true, Remaining: m.policy.Limit - 1, ResetAt: b.resetAt}, nil
	}

	if b.count >= m.policy.Limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: b.resetAt}, nil
	}
	b.count++
	return Result{Allowed: true, Remaining: m.policy.Limit - b.count, ResetAt: b.resetAt}, nil
}

// Sweep drops expired buckets; run it periodically to bound memory.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if now.After(b.resetAt) {
			delete(m.buckets, key)
		}
	}
}
