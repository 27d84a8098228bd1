package logger_test

import (
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

// Example_pipeline shows the fields the collection path logs with
func Example_pipeline() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	log := logger.New(cfg).WithField("module", "collector")

	log.WithDate(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)).Info("Starting data collection")

	log.WithFields(map[string]interface{}{
		"stage":     "stage2",
		"succeeded": 412,
		"failed":    3,
	}).Info("Stage finished")
}

// Example_withTrace logs a wrapped persistence error with its stack
func Example_withTrace() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "error",
		LogFormat: "json",
	}

	log := logger.NewWithWriter(cfg, os.Stderr)

	err := eris.Wrap(eris.New("connection reset"), "store: upsert")
	log.WithTrace(err).Error("Failed to persist snapshots")
}
