// Package reaper returns tasks abandoned by crashed workers to the queue.
package reaper

import (
	"context"
	"time"

	"github.com/kuro6061/nexum/cmd/nexum-server/repository"
	"github.com/kuro6061/nexum/common/db"
	"github.com/kuro6061/nexum/common/logger"
	"github.com/kuro6061/nexum/common/metrics"
)

// Reaper periodically reclaims RUNNING tasks whose lease is older than the
// task timeout. Approval gates and sub-workflow coordinators are exempt:
// both are expected to stay RUNNING for as long as it takes.
type Reaper struct {
	tasks   *repository.TaskRepository
	metrics *metrics.Metrics
	log     *logger.Logger

	interval    time.Duration
	taskTimeout time.Duration
}

// New creates a reaper with the default sweep interval and task timeout.
func New(tasks *repository.TaskRepository, m *metrics.Metrics, log *logger.Logger) *Reaper {
	return &Reaper{
		tasks:       tasks,
		metrics:     m,
		log:         log,
		interval:    30 * time.Second,
		taskTimeout: 60 * time.Second,
	}
}

// WithInterval sets how often the reaper sweeps.
func (r *Reaper) WithInterval(interval time.Duration) *Reaper {
	r.interval = interval
	return r
}

// WithTaskTimeout sets how long a lease may go unrenewed before the task
// counts as abandoned.
func (r *Reaper) WithTaskTimeout(timeout time.Duration) *Reaper {
	r.taskTimeout = timeout
	return r
}

// Start runs the sweep loop until the context is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	r.log.Info("reaper starting",
		"interval", r.interval,
		"task_timeout", r.taskTimeout)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper shutting down")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("failed to reclaim stale tasks", "error", err)
			}
		}
	}
}

// Sweep reclaims every stale task once and reports how many it touched.
// Reclaimed tasks go back to READY with their retry count bumped, so the
// retry budget still bounds a worker that keeps dying mid-task.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	cutoff := db.NewTime(time.Now().Add(-r.taskTimeout))

	reclaimed, err := r.tasks.ReapStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if reclaimed > 0 {
		for i := int64(0); i < reclaimed; i++ {
			r.metrics.TaskRetried()
		}
		r.log.Warn("Reclaimed stale tasks", "count", reclaimed)
	}

	return reclaimed, nil
}
