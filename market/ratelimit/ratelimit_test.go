package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func TestGateSpacesCalls(t *testing.T) {
	clock := NewVirtual(epoch)
	g := NewGate(12*time.Second, clock)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, g.Wait(ctx))
		starts = append(starts, clock.Now())
		clock.Advance(3 * time.Second) // the call itself
	}

	assert.Equal(t, epoch, starts[0])
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 12*time.Second)
	}
	assert.Equal(t, []time.Duration{9 * time.Second, 9 * time.Second, 9 * time.Second}, clock.Sleeps())
}

func TestGateNoWaitWhenIntervalPassed(t *testing.T) {
	clock := NewVirtual(epoch)
	g := NewGate(time.Second, clock)

	require.NoError(t, g.Wait(context.Background()))
	clock.Advance(5 * time.Second)
	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, clock.Sleeps())
}

func TestGateCanceled(t *testing.T) {
	g := NewGate(time.Hour, Real)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}

func TestGateReset(t *testing.T) {
	clock := NewVirtual(epoch)
	g := NewGate(time.Minute, clock)
	require.NoError(t, g.Wait(context.Background()))
	g.Reset()
	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, clock.Sleeps())
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	clock := NewVirtual(epoch)
	tb := PerMinute(5, 2, clock)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(13 * time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucketWaitUsesClock(t *testing.T) {
	clock := NewVirtual(epoch)
	tb := PerMinute(6, 1, clock)
	ctx := context.Background()

	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	assert.Equal(t, epoch.Add(10*time.Second), clock.Now())
}
