package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces a fixed-window requests-per-minute limit per client.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	clients   map[string]*clientWindow
	now       func() time.Time
}

type clientWindow struct {
	start time.Time
	count int
}

// NewRateLimiter allows perMinute requests per client and minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*clientWindow),
		now:       time.Now,
	}
}

// Allow records a request from client and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[client]
	if !ok || now.Sub(w.start) >= time.Minute {
		w = &clientWindow{start: now}
		rl.clients[client] = w
	}
	if w.count >= rl.perMinute {
		return &RateLimitError{Limit: rl.perMinute, RetryAfter: time.Minute - now.Sub(w.start)}
	}
	w.count++
	return nil
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d/min, retry after: %v)", e.Limit, e.RetryAfter.Round(time.Second))
}
