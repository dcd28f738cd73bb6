package hub

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-connection request budget over a fixed
// one-minute window.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	clients     map[string]*clientLimit
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per minute per
// connection.
func NewRateLimiter(maxRequests int) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		clients:     make(map[string]*clientLimit),
	}
}

// Allow reports whether the connection may proceed, counting the attempt.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connID]
	if !exists || now.Sub(limit.windowStart) >= time.Minute {
		rl.clients[connID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if limit.count >= rl.maxRequests {
		return false
	}

	limit.count++
	return true
}

// Cleanup removes entries idle past five windows; call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, connID)
		}
	}
}
