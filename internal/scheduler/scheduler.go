package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aerodash/aeroingest/internal/model"
)

// Runner is one fetch run.
type Runner interface {
	Run(ctx context.Context) (model.Summary, error)
}

// Scheduler runs the pipeline on a fixed interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

// New creates a scheduler that calls r every interval.
func New(r Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic pipeline runs. Blocks until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			slog.Info("scheduler: triggering pipeline run")
			sum, err := s.runner.Run(ctx)
			if err != nil {
				slog.Error("scheduler: pipeline run failed", "run_id", sum.RunID, "error", err)
			}
		case <-s.stop:
			slog.Info("scheduler stopped")
			return
		case <-ctx.Done():
			slog.Info("scheduler context cancelled")
			return
		}
	}
}

// Stop signals the scheduler to stop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}
