// Package gate admits outbound API requests under a sliding-window ceiling.
package gate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for the gate. Sleep returns early with ctx.Err() when
// the context is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces the wall clock (useful for testing).
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// Gate is a sliding-window rate limiter. At most ceiling requests are
// admitted in any trailing window, and consecutive admissions are spaced by
// at least minInterval.
type Gate struct {
	window  time.Duration
	ceiling int
	clock   Clock

	smooth  *rate.Limiter
	smoothM sync.Mutex

	mu      sync.Mutex
	stamps  []time.Time
	granted int64
	waited  time.Duration
}

// New creates a gate admitting ceiling requests per window.
func New(window time.Duration, ceiling int, minInterval time.Duration, opts ...Option) *Gate {
	if window <= 0 {
		window = time.Minute
	}
	if ceiling <= 0 {
		ceiling = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	g := &Gate{
		window:  window,
		ceiling: ceiling,
		clock:   realClock{},
		smooth:  rate.NewLimiter(limit, 1),
		stamps:  make([]time.Time, 0, ceiling),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until one request may be issued.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.spread(ctx); err != nil {
		return err
	}

	for {
		g.mu.Lock()
		now := g.clock.Now()
		g.trim(now)
		if len(g.stamps) < g.ceiling {
			g.stamps = append(g.stamps, now)
			g.granted++
			g.mu.Unlock()
			return nil
		}
		wait := g.stamps[0].Add(g.window).Sub(now)
		g.waited += wait
		g.mu.Unlock()

		gateWaitSeconds.Observe(wait.Seconds())
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// spread enforces the fixed inter-request delay.
func (g *Gate) spread(ctx context.Context) error {
	g.smoothM.Lock()
	now := g.clock.Now()
	r := g.smooth.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	g.smoothM.Unlock()

	if delay <= 0 {
		return nil
	}
	if err := g.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(g.clock.Now())
		return err
	}
	return nil
}

// trim drops timestamps that left the window.
// Must be called with lock held.
func (g *Gate) trim(now time.Time) {
	idx := 0
	for idx < len(g.stamps) && now.Sub(g.stamps[idx]) >= g.window {
		idx++
	}
	if idx > 0 {
		g.stamps = append(g.stamps[:0], g.stamps[idx:]...)
	}
}

// Granted returns the number of requests admitted so far.
func (g *Gate) Granted() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted
}

// InWindow returns how many admissions fall inside the current window.
func (g *Gate) InWindow() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trim(g.clock.Now())
	return len(g.stamps)
}

// Waited returns the total time callers were told to wait for the window.
func (g *Gate) Waited() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waited
}
