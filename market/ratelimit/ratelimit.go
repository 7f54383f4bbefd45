package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate enforces a minimum interval between the starts of consecutive calls.
// Callers are serialized: a second Wait blocks until the first has been let
// through and the interval has elapsed.
type Gate struct {
	Interval time.Duration
	Clock    Clock

	mu   sync.Mutex
	last time.Time
}

func NewGate(interval time.Duration, clock Clock) *Gate {
	if clock == nil {
		clock = Real
	}
	return &Gate{Interval: interval, Clock: clock}
}

// Wait returns once the caller may start its call, or early with ctx.Err().
// The first call is never delayed.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	clock := g.clock()
	if g.Interval > 0 && !g.last.IsZero() {
		if wait := g.last.Add(g.Interval).Sub(clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clock.After(wait):
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	g.last = clock.Now()
	return nil
}

// Reset forgets the previous call, so the next Wait passes immediately.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.last = time.Time{}
	g.mu.Unlock()
}

func (g *Gate) clock() Clock {
	if g.Clock == nil {
		return Real
	}
	return g.Clock
}

// TokenBucket is a token bucket limiter.
//   - rate: tokens per second
//   - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64
	clock    Clock

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int, clock Clock) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = Real
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		clock:    clock,
		tokens:   float64(burst), // start full to allow an initial burst
		last:     clock.Now(),
	}
}

// PerMinute builds a bucket allowing n calls per minute.
func PerMinute(n, burst int, clock Clock) *TokenBucket {
	return NewTokenBucket(float64(n)/60, burst, clock)
}

// Allow takes a token if one is available right now.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until one token is available or ctx is canceled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tb.clock.After(waitDur):
		}
	}
}

// Tokens reports the current token count, after refilling.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

func (tb *TokenBucket) refill() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.last).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = now
	}
}
