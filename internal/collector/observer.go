package collector

import (
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

// LogObserver reports pipeline progress through the structured logger
type LogObserver struct {
	base   *logger.Logger
	logger *logger.Logger
	every  int
}

// NewLogObserver creates an observer that logs task progress every n completions
func NewLogObserver(log *logger.Logger, every int) *LogObserver {
	if every <= 0 {
		every = 100
	}
	return &LogObserver{
		base:   log,
		logger: log.WithField("module", "collector"),
		every:  every,
	}
}

// Named returns a copy tagging its entries with module instead of "collector"
func (o *LogObserver) Named(module string) *LogObserver {
	return &LogObserver{base: o.base, logger: o.base.WithField("module", module), every: o.every}
}

// StageStarted logs the start of a stage
func (o *LogObserver) StageStarted(stage string, total int) {
	o.logger.WithFields(map[string]interface{}{
		"stage": stage,
		"total": total,
	}).Info("Stage started")
}

// TaskDone logs failures and periodic progress
func (o *LogObserver) TaskDone(stage string, done, total int, err error) {
	if err != nil {
		o.logger.WithError(err).WithField("stage", stage).Debug("Task failed")
	}
	if done%o.every == 0 || done == total {
		o.logger.WithFields(map[string]interface{}{
			"stage": stage,
			"done":  done,
			"total": total,
		}).Info("Progress")
	}
}

// StageFinished logs per-stage counts
func (o *LogObserver) StageFinished(stage string, succeeded, failed int) {
	o.logger.WithFields(map[string]interface{}{
		"stage":   stage,
		"success": succeeded,
		"failed":  failed,
	}).Info("Stage completed")
}

// Warn logs a warning with fields
func (o *LogObserver) Warn(msg string, fields map[string]interface{}) {
	o.logger.WithFields(fields).Warn(msg)
}
