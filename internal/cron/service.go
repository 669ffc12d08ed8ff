package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
	"github.com/angelmondragon/wdir-license-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultInterval = 24 * time.Hour

// Job is one maintenance task executed on every cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service runs its jobs on a fixed cadence. A cycle only runs on the worker
// holding the lease, and every job runs even when an earlier one fails.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	locker   Locker
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	jobs := make([]Job, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, errors.New("at least one job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		jobs:     jobs,
		locker:   params.Locker,
		metrics:  params.Metrics,
		interval: interval,
		now:      now,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// canceled. Cycle failures are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes a single cycle. It returns nil without running anything
// when another worker holds the lease, and the combined job errors otherwise.
func (s *Service) RunOnce(ctx context.Context) error {
	lease, err := s.locker.Acquire(ctx)
	if errors.Is(err, ErrLockHeld) {
		s.logg.Info(ctx, "cron.cycle.skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire cycle lease: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lease.release_failed", err)
		}
	}()

	s.logg.Info(ctx, "cron.cycle.start")
	var errs []error
	for _, job := range s.jobs {
		if err := s.runJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "failed_jobs", len(errs)), "cron.cycle.complete")
	return multierr.Combine(errs...)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	s.logg.Info(ctx, "cron.job.start")

	started := s.now()
	err := job.Run(ctx)
	elapsed := s.now().Sub(started)

	s.metrics.ObserveDuration(job.Name(), elapsed)
	ctx = s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(job.Name())
		s.logg.Error(ctx, "cron.job.failed", err)
		return err
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(ctx, "cron.job.complete")
	return nil
}
