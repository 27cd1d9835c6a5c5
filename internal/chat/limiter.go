package chat

import (
	"sync"
	"time"

	"github.com/classmeet/server/internal/domain"
)

// RateLimiter enforces a sliding-window message ceiling per user key.
// Windows are in-memory only and reset on restart.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.UserKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.UserKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow prunes timestamps older than the window, refuses if the fresh
// count already hit the limit, and otherwise records the new attempt.
func (rl *RateLimiter) Allow(key domain.UserKey) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[key] = fresh
	return true
}

// Forget drops one user's window, e.g. when they fully left a room.
func (rl *RateLimiter) Forget(key domain.UserKey) {
	rl.mu.Lock()
	delete(rl.history, key)
	rl.mu.Unlock()
}

// Sweep discards fully expired windows. Hooked to room destruction so
// the map does not grow with dead meetings.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.interval)
	for key, attempts := range rl.history {
		live := false
		for _, t := range attempts {
			if t.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.history, key)
		}
	}
}
