package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/logger"
)

// Codes must outlive the per-email request window they are counted in.
const defaultCodeRetention = 7 * 24 * time.Hour

type CodeCleanupJobParams struct {
	Logger     *logger.Logger
	Repository codeCleanupRepo
	Retention  time.Duration
}

type codeCleanupRepo interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewCodeCleanupJob purges verification codes that expired more than the
// retention period ago.
func NewCodeCleanupJob(params CodeCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("verification repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultCodeRetention
	}
	return &codeCleanupJob{
		logg:      params.Logger,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type codeCleanupJob struct {
	logg      *logger.Logger
	repo      codeCleanupRepo
	retention time.Duration
	now       func() time.Time
}

func (j *codeCleanupJob) Name() string { return "verification-code-cleanup" }

func (j *codeCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("verification code cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "verification code cleanup complete")
	return nil
}
