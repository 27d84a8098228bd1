package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

// RetentionStore deletes aged snapshots and run logs
type RetentionStore interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRunLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionCleanupJob removes snapshots older than the retention window
type RetentionCleanupJob struct {
	store    RetentionStore
	keepDays int
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRetentionCleanupJob creates a new retention cleanup job
func NewRetentionCleanupJob(store RetentionStore, cfg *config.Config, log *logger.Logger) *RetentionCleanupJob {
	return &RetentionCleanupJob{
		store:    store,
		keepDays: cfg.Retention.KeepDays,
		schedule: cfg.Schedule.Cleanup,
		logger:   log.WithField("job", "retention_cleanup"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *RetentionCleanupJob) Name() string {
	return "retention_cleanup"
}

// Schedule returns the cron schedule (daily)
func (j *RetentionCleanupJob) Schedule() string {
	return j.schedule
}

// Run executes the cleanup with the configured window
func (j *RetentionCleanupJob) Run(ctx context.Context) error {
	_, _, err := j.Cleanup(ctx, j.keepDays)
	return err
}

// Cutoff returns the first data date kept for keepDays
func (j *RetentionCleanupJob) Cutoff(keepDays int) time.Time {
	y, m, d := j.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -keepDays)
}

// Cleanup deletes snapshots and run logs dated before the cutoff
func (j *RetentionCleanupJob) Cleanup(ctx context.Context, keepDays int) (int64, int64, error) {
	if keepDays < 1 {
		return 0, 0, fmt.Errorf("keep days must be >= 1, got %d", keepDays)
	}
	cutoff := j.Cutoff(keepDays)

	snapshots, err := j.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("delete snapshots: %w", err)
	}

	logs, err := j.store.DeleteRunLogsBefore(ctx, cutoff)
	if err != nil {
		return snapshots, 0, fmt.Errorf("delete run logs: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"cutoff":    cutoff.Format("2006-01-02"),
		"snapshots": snapshots,
		"run_logs":  logs,
	}).Info("Retention cleanup completed")

	return snapshots, logs, nil
}
