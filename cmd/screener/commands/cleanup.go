package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/scheduler/jobs"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "보관 기간 지난 데이터 정리",
	Long: `keep-days 보다 오래된 스냅샷과 실행 로그를 삭제합니다.

Example:
  go run ./cmd/screener cleanup
  go run ./cmd/screener cleanup --keep-days 30`,
	RunE: runCleanup,
}

var cleanupKeepDays int

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupKeepDays, "keep-days", 0, "days to keep (default RETENTION_KEEP_DAYS)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Snapshot Retention Cleanup ===")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	keepDays := a.cfg.Retention.KeepDays
	if cleanupKeepDays > 0 {
		keepDays = cleanupKeepDays
	}

	job := jobs.NewRetentionCleanupJob(a.store, a.cfg, a.log)
	fmt.Printf("📊 Removing data before %s (keep %d days)\n", job.Cutoff(keepDays).Format("2006-01-02"), keepDays)

	snapshots, logs, err := job.Cleanup(ctx, keepDays)
	if err != nil {
		return fmt.Errorf("❌ cleanup failed: %w", err)
	}

	if a.cache != nil {
		if _, err := a.cache.DeletePattern(ctx, "*"); err != nil {
			a.log.WithError(err).Warn("Cache flush failed")
		}
	}

	fmt.Printf("✅ Deleted %d snapshots and %d run logs\n", snapshots, logs)
	return nil
}
