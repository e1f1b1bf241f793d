package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/experiences-backend/pkg/logger"
	"github.com/angelmondragon/experiences-backend/pkg/metrics"
)

type SweeperParams struct {
	Logger   *logger.Logger
	Lease    *Lease
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
	Tasks    []Task
}

// Sweeper runs every task once per interval while holding the lease.
type Sweeper struct {
	logg     *logger.Logger
	lease    *Lease
	metrics  *metrics.MaintenanceMetrics
	interval time.Duration
	tasks    []Task
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lease == nil {
		return nil, fmt.Errorf("lease required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	tasks := make([]Task, 0, len(params.Tasks))
	for _, task := range params.Tasks {
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return &Sweeper{
		logg:     params.Logger,
		lease:    params.Lease,
		metrics:  params.Metrics,
		interval: params.Interval,
		tasks:    tasks,
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "maintenance sweep failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs all tasks once. Task failures do not stop later tasks; they are combined in the result.
func (s *Sweeper) Sweep(ctx context.Context) error {
	release, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if release == nil {
		s.logg.Info(ctx, "maintenance lease held elsewhere; skipping sweep")
		return nil
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "failed to release maintenance lease")
		}
	}()

	var errs error
	for _, task := range s.tasks {
		errs = multierr.Append(errs, s.runTask(ctx, task))
	}
	return errs
}

func (s *Sweeper) runTask(ctx context.Context, task Task) error {
	taskCtx := s.logg.WithField(ctx, "task", task.Name())
	start := time.Now()
	rows, err := task.Run(taskCtx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveRun(task.Name(), "failure", elapsed)
		return fmt.Errorf("%s: %w", task.Name(), err)
	}
	s.metrics.ObserveRun(task.Name(), "success", elapsed)
	s.metrics.AddPruned(task.Name(), rows)
	s.logg.Info(s.logg.WithField(taskCtx, "duration_ms", elapsed.Milliseconds()), "maintenance task complete")
	return nil
}
