package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ddalkkak/backend/internal/collector"
	"github.com/wonny/ddalkkak/backend/internal/export"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

// Collector runs one collection for a data date (*collector.Pipeline)
type Collector interface {
	Run(ctx context.Context, dataDate time.Time) (*collector.Result, error)
}

// CacheInvalidator drops cached API responses (*redis.Cache)
type CacheInvalidator interface {
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// DataCollectionJob collects the daily snapshot after the market close
// ⭐ SSOT: 데이터 수집 스케줄은 이 Job에서만
type DataCollectionJob struct {
	pipeline  Collector
	cache     CacheInvalidator
	backupDir string
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewDataCollectionJob creates a new data collection job
func NewDataCollectionJob(pipeline Collector, cfg *config.Config, log *logger.Logger) *DataCollectionJob {
	return &DataCollectionJob{
		pipeline:  pipeline,
		backupDir: cfg.Collector.BackupDir,
		schedule:  cfg.Schedule.Collection,
		logger:    log.WithField("job", "data_collection"),
		now:       time.Now,
	}
}

// WithCache invalidates cached responses for the collected date
func (j *DataCollectionJob) WithCache(cache CacheInvalidator) *DataCollectionJob {
	j.cache = cache
	return j
}

// WithBackupDir overrides the CSV backup directory ("" = no backup)
func (j *DataCollectionJob) WithBackupDir(dir string) *DataCollectionJob {
	j.backupDir = dir
	return j
}

// Name returns the job name
func (j *DataCollectionJob) Name() string {
	return "data_collection"
}

// Schedule returns the cron schedule (weekdays after the close)
func (j *DataCollectionJob) Schedule() string {
	return j.schedule
}

// Run collects today's snapshot
func (j *DataCollectionJob) Run(ctx context.Context) error {
	_, err := j.Collect(ctx, j.now())
	return err
}

// Collect runs the pipeline for dataDate, then backs up the batch and drops stale cache entries.
// Backup and cache failures are logged; they never fail a persisted run.
func (j *DataCollectionJob) Collect(ctx context.Context, dataDate time.Time) (*collector.Result, error) {
	j.logger.WithDate(dataDate).Info("Starting data collection")

	res, err := j.pipeline.Run(ctx, dataDate)
	if err != nil {
		j.logger.WithDate(dataDate).WithTrace(err).Error("Data collection failed")
		return res, fmt.Errorf("collect %s: %w", dataDate.Format("2006-01-02"), err)
	}

	date := res.Log.CollectionDate
	if j.backupDir != "" {
		path, err := export.WriteBackupCSV(j.backupDir, date, res.Records)
		if err != nil {
			j.logger.WithError(err).Warn("Backup CSV failed")
		} else {
			j.logger.WithField("path", path).Info("Backup CSV saved")
		}
	}

	if j.cache != nil {
		if _, err := j.cache.DeletePattern(ctx, redis.DatePrefix(date.Format("2006-01-02"))); err != nil {
			j.logger.WithError(err).Warn("Cache invalidation failed")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"persisted": res.Persisted,
		"stage1":    res.Log.Stage1Success,
		"stage2":    res.Log.Stage2Success,
		"failed":    res.Log.TotalFailed,
		"duration":  res.Log.Duration().String(),
	}).Info("Data collection completed successfully")

	return res, nil
}
