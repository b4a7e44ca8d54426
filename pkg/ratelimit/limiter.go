package ratelimit

import (
	"context"
	"sync"
	"time"
)

// minPoll is the shortest pause of a Wait loop
const minPoll = 10 * time.Millisecond

// Limiter paces our own outgoing requests
type Limiter interface {
	// Allow takes a slot if one is free right now
	Allow() bool
	// Wait blocks until a slot is taken or ctx ends
	Wait(ctx context.Context) error
}

// clock is shared by the limiters so tests can move time by hand
type clock struct {
	now func() time.Time
}

func (c *clock) current() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// TokenBucket hands out capacity tokens per period. The bucket is refilled
// in one step when the period since the last refill has passed.
type TokenBucket struct {
	clock
	mu       sync.Mutex
	capacity int
	tokens   int
	period   time.Duration
	filledAt time.Time
}

// NewTokenBucket creates a full bucket. A non-positive period refills on
// every call, which disables pacing.
func NewTokenBucket(capacity int, period time.Duration) *TokenBucket {
	capacity = max(capacity, 1)
	return &TokenBucket{
		capacity: capacity,
		tokens:   capacity,
		period:   period,
		filledAt: time.Now(),
	}
}

// Allow implements Limiter
func (tb *TokenBucket) Allow() bool {
	_, ok := tb.take()
	return ok
}

// take returns the time until the next refill when the bucket is empty
func (tb *TokenBucket) take() (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.current()
	if elapsed := now.Sub(tb.filledAt); elapsed >= tb.period {
		tb.tokens = tb.capacity
		tb.filledAt = now
	}
	if tb.tokens > 0 {
		tb.tokens--
		return 0, true
	}
	return tb.period - now.Sub(tb.filledAt), false
}

// Wait implements Limiter
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait, ok := tb.take()
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, max(wait, minPoll)); err != nil {
			return err
		}
	}
}

// SlidingWindow allows at most limit requests in any window-long span.
// The media download pool uses it for requests_per_minute.
type SlidingWindow struct {
	clock
	mu     sync.Mutex
	limit  int
	window time.Duration
	// sent holds the start times inside the current window, oldest first
	sent []time.Time
}

// NewSlidingWindow creates a window limiter
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	limit = max(limit, 1)
	return &SlidingWindow{
		limit:  limit,
		window: window,
		sent:   make([]time.Time, 0, limit),
	}
}

// Allow implements Limiter
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.take()
	return ok
}

// take returns how long until the oldest request leaves the window when the
// window is full
func (sw *SlidingWindow) take() (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.current()
	cutoff := now.Add(-sw.window)
	expired := 0
	for expired < len(sw.sent) && !sw.sent[expired].After(cutoff) {
		expired++
	}
	sw.sent = append(sw.sent[:0], sw.sent[expired:]...)

	if len(sw.sent) < sw.limit {
		sw.sent = append(sw.sent, now)
		return 0, true
	}
	return sw.sent[0].Sub(cutoff), false
}

// Wait implements Limiter
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.take()
		if ok {
			return nil
		}
		if err := sleepCtx(ctx, max(wait, minPoll)); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
