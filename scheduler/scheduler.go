// Package scheduler drives automatic rule execution: a ticker loop that
// periodically runs every enabled rule through the execution coordinator.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/queueshift/queueshift/internal/logger"
	"github.com/queueshift/queueshift/rules"
)

// DefaultBatchTimeout bounds one scheduled batch. Bulk updates over large
// candidate catalogs can legitimately take minutes.
const DefaultBatchTimeout = 10 * time.Minute

// Runner periodically executes all enabled rules. The coordinator already
// serializes batches, so a tick that arrives while a manual run is in
// flight simply waits its turn.
type Runner struct {
	coord    *rules.Coordinator
	interval time.Duration
	timeout  time.Duration

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a runner that ticks at the given interval.
func New(coord *rules.Coordinator, interval time.Duration) *Runner {
	return &Runner{
		coord:    coord,
		interval: interval,
		timeout:  DefaultBatchTimeout,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately; call Stop to
// terminate the loop and wait for a tick in progress.
func (r *Runner) Start(ctx context.Context) {
	r.started = true
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		logger.Info("scheduler started", "interval", r.interval)
		for {
			select {
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce executes all enabled rules a single time under the batch timeout.
func (r *Runner) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.coord.ExecuteEnabled(runCtx, rules.TriggeredByScheduler)
	if err != nil {
		logger.Error("scheduled execution failed", "error", err)
		return
	}

	if result.Processed > 0 || len(result.Errors) > 0 {
		logger.Info("scheduled execution complete",
			"processed", result.Processed,
			"updated", result.Updated,
			"errors", len(result.Errors))
	}
}

// Stop terminates the loop and waits for it to exit.
func (r *Runner) Stop() {
	if !r.started {
		return
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
