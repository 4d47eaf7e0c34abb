package server

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long a client bucket survives without traffic.
const idleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client.
type RateLimiter struct {
	mu sync.Mutex

	limit rate.Limit
	burst int

	clients   map[string]*clientLimiter
	lastPrune time.Time
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerSecond sustained requests per client with
// bursts of up to burst requests.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow consumes one token for clientID. When the bucket is empty it returns
// a *RateLimitError telling the client how long to wait.
func (rl *RateLimiter) Allow(clientID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneIdle(now)

	c, ok := rl.clients[clientID]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return &RateLimitError{Limit: float64(rl.limit), Burst: rl.burst, RetryAfter: time.Second}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &RateLimitError{Limit: float64(rl.limit), Burst: rl.burst, RetryAfter: delay}
	}
	return nil
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Reset forgets every client.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	clear(rl.clients)
}

// pruneIdle drops buckets that have been idle for idleTTL. It runs at most
// once per idleTTL.
func (rl *RateLimiter) pruneIdle(now time.Time) {
	if now.Sub(rl.lastPrune) < idleTTL {
		return
	}
	for id, c := range rl.clients {
		if now.Sub(c.lastSeen) >= idleTTL {
			delete(rl.clients, id)
		}
	}
	rl.lastPrune = now
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Limit      float64       // sustained requests per second
	Burst      int           // bucket size
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %g req/s, burst: %d, retry after: %v)", e.Limit, e.Burst, e.RetryAfter)
}
