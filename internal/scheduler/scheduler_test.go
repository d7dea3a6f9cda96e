package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aerodash/aeroingest/internal/model"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (r *countingRunner) Run(context.Context) (model.Summary, error) {
	r.runs.Add(1)
	return model.Summary{RunID: "test"}, r.err
}

func TestSchedulerRunsUntilStopped(t *testing.T) {
	r := &countingRunner{err: errors.New("no airport data fetched")}
	s := New(r, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.runs.Load() >= 2 }, time.Second, time.Millisecond,
		"a failed run does not stop the schedule")

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	r := &countingRunner{}
	s := New(r, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler ignored cancellation")
	}
	assert.Equal(t, int32(0), r.runs.Load())
}
