package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Guard remembers keys for a bounded time. Seen records key and reports
// whether it was already present.
type Guard interface {
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// Memory is an in-process Guard. Expired keys are pruned on every write.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemory creates an empty in-process guard.
func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// Seen implements Guard.
func (m *Memory) Seen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, k)
		}
	}

	if _, ok := m.entries[key]; ok {
		return true, nil
	}
	m.entries[key] = now.Add(ttl)
	return false, nil
}

// Len returns the number of unexpired keys currently held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close implements Guard.
func (m *Memory) Close() error { return nil }

// Nop never reports a key as seen.
type Nop struct{}

func (Nop) Seen(context.Context, string, time.Duration) (bool, error) { return false, nil }
func (Nop) Close() error                                               { return nil }

// New returns the Guard for backend: "memory", "redis" or "none".
func New(ctx context.Context, backend string, rc RedisConfig, logger *slog.Logger) (Guard, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, rc, logger)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown replay backend %q", backend)
	}
}
