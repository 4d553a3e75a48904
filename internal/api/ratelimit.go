package api

import (
	"net/http"
	"sync"
	"time"
)

// bucket refills continuously at capacity tokens per minute.
type bucket struct {
	tokens   float64
	capacity float64
	last     time.Time
}

func newBucket(capacity int, now time.Time) *bucket {
	return &bucket{tokens: float64(capacity), capacity: float64(capacity), last: now}
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+elapsed.Minutes()*b.capacity)
	b.last = now
}

// RateLimiter enforces a per-client and a global request budget per minute.
type RateLimiter struct {
	mu        sync.Mutex
	perIP     int
	global    *bucket
	clients   map[string]*bucket
	idleTTL   time.Duration
	lastSwept time.Time
	now       func() time.Time
}

func NewRateLimiter(perIP, global int) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		perIP:     perIP,
		global:    newBucket(global, now),
		clients:   make(map[string]*bucket),
		idleTTL:   10 * time.Minute,
		lastSwept: now,
		now:       time.Now,
	}
}

// Allow spends one token from both the global and the client's bucket.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	rl.global.refill(now)
	client, ok := rl.clients[clientIP]
	if !ok {
		client = newBucket(rl.perIP, now)
		rl.clients[clientIP] = client
	}
	client.refill(now)

	if rl.global.tokens < 1 || client.tokens < 1 {
		return false
	}
	rl.global.tokens--
	client.tokens--
	return true
}

// Tracked returns the number of clients with a live bucket.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSwept) < rl.idleTTL/2 {
		return
	}
	for ip, b := range rl.clients {
		if now.Sub(b.last) >= rl.idleTTL {
			delete(rl.clients, ip)
		}
	}
	rl.lastSwept = now
}

// Limit wraps next with the limiter, keyed by the resolved client address.
func (rl *RateLimiter) Limit(resolver *ClientIPResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(resolver.FromRequest(r)) {
			w.Header().Set("Retry-After", "60")
			respondJSON(w, errorBody("rate limit exceeded", "RATE_LIMIT_EXCEEDED"), http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
