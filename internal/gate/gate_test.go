package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when a caller sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func TestAcquireNeverExceedsCeiling(t *testing.T) {
	clock := newFakeClock()
	g := New(60*time.Second, 3, 0, WithClock(clock))

	var grants []time.Time
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		grants = append(grants, clock.Now())
	}

	for i, start := range grants {
		inWindow := 0
		for _, ts := range grants[i:] {
			if ts.Sub(start) < 60*time.Second {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 3, "window starting at grant %d", i)
	}
	assert.Equal(t, int64(10), g.Granted())

	// 10 grants at ceiling 3 need three full windows of waiting.
	assert.Equal(t, 180*time.Second, clock.Now().Sub(grants[0]))
	assert.Equal(t, 180*time.Second, g.Waited())
}

func TestAcquireSpacesRequests(t *testing.T) {
	clock := newFakeClock()
	g := New(time.Minute, 100, 100*time.Millisecond, WithClock(clock))

	start := clock.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Acquire(context.Background()))
	}

	// first token is free, the next four are spaced out
	assert.Equal(t, 400*time.Millisecond, clock.Now().Sub(start))
	assert.Zero(t, g.Waited(), "spacing is not window waiting")
	assert.Equal(t, 5, g.InWindow())
}

func TestInWindowForgetsOldRequests(t *testing.T) {
	clock := newFakeClock()
	g := New(time.Second, 5, 0, WithClock(clock))

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Acquire(context.Background()))
	}
	assert.Equal(t, 4, g.InWindow())

	require.NoError(t, clock.Sleep(context.Background(), time.Second))
	assert.Equal(t, 0, g.InWindow())
	assert.Equal(t, int64(4), g.Granted())
}

func TestAcquireCancelled(t *testing.T) {
	g := New(time.Hour, 1, 0)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), g.Granted())
}

func TestAcquireConcurrent(t *testing.T) {
	const (
		window  = 100 * time.Millisecond
		ceiling = 2
		callers = 6
	)
	g := New(window, ceiling, 0)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(callers), g.Granted())
	assert.LessOrEqual(t, g.InWindow(), ceiling)
	// six callers at two per window need at least two full windows
	assert.GreaterOrEqual(t, time.Since(start), 2*window)
}
