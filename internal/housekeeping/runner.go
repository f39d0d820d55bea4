// Package housekeeping runs periodic maintenance that sits outside the
// payment flow: trimming delivered outbox rows and the webhook dedup ledger.
// Nothing here changes order or payment state.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/grundyhq/grundy-backend/pkg/logger"
	"github.com/grundyhq/grundy-backend/pkg/metrics"
)

const defaultInterval = 6 * time.Hour

// Task is one maintenance step. Run reports how many rows it removed.
type Task interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// RunnerParams wires a runner.
type RunnerParams struct {
	Logger   *logger.Logger
	Lock     Lock
	Tasks    []Task
	Metrics  *metrics.HousekeepingMetrics
	Interval time.Duration
}

// Runner executes its tasks on a fixed cadence while holding the shared lock,
// so only one replica does the work per cycle.
type Runner struct {
	logg     *logger.Logger
	lock     Lock
	tasks    []Task
	metrics  *metrics.HousekeepingMetrics
	interval time.Duration
}

func NewRunner(p RunnerParams) (*Runner, error) {
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	tasks := make([]Task, 0, len(p.Tasks))
	for _, task := range p.Tasks {
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("at least one task required")
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		logg:     p.Logger,
		lock:     p.Lock,
		tasks:    tasks,
		metrics:  p.Metrics,
		interval: interval,
	}, nil
}

// Run performs one cycle immediately and then one per interval until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.cycle(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	locked, err := r.lock.Acquire(ctx)
	if err != nil {
		r.logg.Error(ctx, "housekeeping lock acquire failed", err)
		return
	}
	if !locked {
		r.logg.Info(ctx, "housekeeping cycle held by another replica")
		return
	}
	defer func() {
		if err := r.lock.Release(ctx); err != nil {
			r.logg.Error(ctx, "housekeeping lock release failed", err)
		}
	}()

	for _, task := range r.tasks {
		r.runTask(ctx, task)
	}
}

// runTask never stops the cycle; a failing task is logged and counted.
func (r *Runner) runTask(ctx context.Context, task Task) {
	taskCtx := r.logg.WithField(ctx, "task", task.Name())
	start := time.Now()
	removed, err := task.Run(taskCtx)
	elapsed := time.Since(start)
	r.metrics.ObserveTask(task.Name(), elapsed, removed, err)

	taskCtx = r.logg.WithFields(taskCtx, map[string]any{
		"duration_ms":  elapsed.Milliseconds(),
		"rows_removed": removed,
	})
	if err != nil {
		r.logg.Error(taskCtx, "housekeeping task failed", err)
		return
	}
	r.logg.Info(taskCtx, "housekeeping task complete")
}
