package server

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limit on verification attempts per
// canonical account address.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[string][]time.Time
}

// NewRateLimiter allows limit attempts per window. A limit <= 0 disables
// limiting; a window <= 0 means one minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string][]time.Time),
	}
}

// Allow records one attempt for key and reports whether it fits in the
// window. Keys with no recent attempts are dropped.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.recent(key, now.Add(-rl.window))
	if len(recent) >= rl.limit {
		return false
	}
	rl.counters[key] = append(recent, now)
	return true
}

// recent prunes attempts at or before cutoff. Callers hold rl.mu.
func (rl *RateLimiter) recent(key string, cutoff time.Time) []time.Time {
	attempts := rl.counters[key]
	kept := attempts[:0]
	for _, ts := range attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(rl.counters, key)
		return nil
	}
	rl.counters[key] = kept
	return kept
}

// tracked returns how many keys currently hold attempts.
func (rl *RateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counters)
}
