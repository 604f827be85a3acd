package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls to an upstream API evenly over a minute. It holds
// at most one spare token, so bursts are not allowed.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration // zero means unlimited
	next     time.Time     // earliest time the next call may proceed
}

// NewRateLimiter allows perMinute calls per minute. A non-positive value
// disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{}
	if perMinute > 0 {
		rl.interval = time.Minute / time.Duration(perMinute)
	}
	return rl
}

// Wait blocks until the caller may proceed or ctx is done. A cancelled
// wait does not consume a slot.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := rl.take(time.Now())
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// take claims the slot at now if it is free and returns zero, otherwise it
// returns how long until the slot frees up.
func (rl *RateLimiter) take(now time.Time) time.Duration {
	if rl.interval == 0 {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if d := rl.next.Sub(now); d > 0 {
		return d
	}
	rl.next = now.Add(rl.interval)
	return 0
}
