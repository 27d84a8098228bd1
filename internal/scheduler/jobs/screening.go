package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ddalkkak/backend/internal/export"
	"github.com/wonny/ddalkkak/backend/internal/screening"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

// Screener runs the screening service (*screening.Service)
type Screener interface {
	Run(ctx context.Context, dataDate time.Time, selection []string) (*screening.Summary, error)
}

// ScreeningJob screens the latest collected date with every profile
type ScreeningJob struct {
	service   Screener
	cache     CacheInvalidator
	exportDir string
	schedule  string
	logger    *logger.Logger
}

// NewScreeningJob creates a new screening job
func NewScreeningJob(service Screener, cfg *config.Config, log *logger.Logger) *ScreeningJob {
	return &ScreeningJob{
		service:   service,
		exportDir: cfg.Screening.ExportDir,
		schedule:  cfg.Schedule.Screening,
		logger:    log.WithField("job", "screening"),
	}
}

// WithCache invalidates cached responses for the screened date
func (j *ScreeningJob) WithCache(cache CacheInvalidator) *ScreeningJob {
	j.cache = cache
	return j
}

// Name returns the job name
func (j *ScreeningJob) Name() string {
	return "screening"
}

// Schedule returns the cron schedule (after data collection)
func (j *ScreeningJob) Schedule() string {
	return j.schedule
}

// Run screens the latest date with all profiles
func (j *ScreeningJob) Run(ctx context.Context) error {
	_, _, err := j.Screen(ctx, time.Time{}, []string{screening.AllProfiles}, false)
	return err
}

// Screen runs the selected profiles on dataDate (zero = latest).
// With exportExcel the per-profile results are written to a workbook whose path is returned.
func (j *ScreeningJob) Screen(ctx context.Context, dataDate time.Time, selection []string, exportExcel bool) (*screening.Summary, string, error) {
	sum, err := j.service.Run(ctx, dataDate, selection)
	if err != nil {
		return nil, "", fmt.Errorf("screening: %w", err)
	}

	date := sum.DataDate.Format("2006-01-02")
	for _, profile := range sum.Profiles {
		j.logger.WithFields(map[string]interface{}{
			"profile": profile,
			"passed":  sum.PerProfile[profile],
		}).Info("Profile screened")
	}

	if j.cache != nil {
		if _, err := j.cache.DeletePattern(ctx, redis.DatePrefix(date)); err != nil {
			j.logger.WithError(err).Warn("Cache invalidation failed")
		}
	}

	var path string
	if exportExcel {
		path = export.WorkbookPath(j.exportDir, sum.DataDate)
		sheets, err := export.ExportProfiles(path, sum.Profiles, sum.Results)
		if err != nil {
			return sum, "", fmt.Errorf("export excel: %w", err)
		}
		if sheets == 0 {
			path = ""
		}
	}

	j.logger.WithDate(sum.DataDate).WithFields(map[string]interface{}{
		"loaded":  sum.Loaded,
		"merged":  len(sum.Merged.Rows),
		"updated": sum.Updated,
	}).Info("Screening completed successfully")

	return sum, path, nil
}
