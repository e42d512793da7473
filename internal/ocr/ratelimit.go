package ocr

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket: capacity and refill rate both derive from a
// requests-per-minute budget. Wait blocks until a token is available, so a
// burst of recognition calls smooths out to the provider's advertised limit.
type RateLimiter struct {
	mu sync.Mutex

	limit      int     // bucket capacity, tokens
	perSecond  float64 // refill rate
	tokens     float64
	lastRefill time.Time

	consumed int64
	waited   time.Duration
	last429  time.Time
}

// NewRateLimiter creates a limiter for the given requests-per-minute budget.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}
	return &RateLimiter{
		limit:      requestsPerMinute,
		perSecond:  float64(requestsPerMinute) / 60.0,
		tokens:     float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// Wait consumes one token, blocking until one accrues or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refillLocked()

		if r.tokens >= 1.0 {
			r.tokens--
			r.consumed++
			r.mu.Unlock()
			return nil
		}

		need := 1.0 - r.tokens
		wait := time.Duration(need / r.perSecond * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			r.mu.Lock()
			r.waited += wait
			r.mu.Unlock()
		}
	}
}

// Record429 notes a rate-limit response from the provider and drains the
// bucket so subsequent calls back off for a full refill cycle.
func (r *RateLimiter) Record429() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429 = time.Now()
	r.tokens = 0
}

// RateLimiterStatus reports a snapshot of limiter state.
type RateLimiterStatus struct {
	Limit     int           `json:"limit"`
	Available int           `json:"available"`
	Consumed  int64         `json:"consumed"`
	Waited    time.Duration `json:"waited"`
	Last429   time.Time     `json:"last_429,omitempty"`
}

// Status returns the current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refillLocked()
	return RateLimiterStatus{
		Limit:     r.limit,
		Available: int(r.tokens),
		Consumed:  r.consumed,
		Waited:    r.waited,
		Last429:   r.last429,
	}
}

// refillLocked accrues tokens for elapsed time, capped at capacity.
// Caller must hold r.mu.
func (r *RateLimiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.lastRefill = now

	r.tokens += elapsed * r.perSecond
	if r.tokens > float64(r.limit) {
		r.tokens = float64(r.limit)
	}
}
