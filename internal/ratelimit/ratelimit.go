// Package ratelimit provides the per-connection token bucket used to bound
// inbound signaling frame rates.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so refill behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// TokenBucket refills at ratePerSecond with a burst capacity equal to the
// rate. Each Allow consumes one token.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// New returns a bucket permitting ratePerSecond frames per second, or nil
// when ratePerSecond <= 0 (limiting disabled). Callers treat a nil bucket as
// always allowing.
func New(clock Clock, ratePerSecond int) *TokenBucket {
	if ratePerSecond <= 0 {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	rate := float64(ratePerSecond)
	return &TokenBucket{
		clock:    clock,
		rate:     rate,
		capacity: rate,
		tokens:   rate,
		last:     clock.Now(),
	}
}

func (b *TokenBucket) Allow() bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	// A backwards clock step skips the refill but still moves the reference
	// point so the bucket cannot stall forever.
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
