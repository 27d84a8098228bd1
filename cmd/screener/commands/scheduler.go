package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록과 다음 실행 시각
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/screener scheduler start
  go run ./cmd/screener scheduler list
  go run ./cmd/screener scheduler run data_collection`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- data_collection: SCHEDULE_COLLECTION (기본 평일 17:30)
- screening: SCHEDULE_SCREENING (기본 평일 19:30, 전체 프로파일)
- retention_cleanup: SCHEDULE_CLEANUP (기본 매일 03:00)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Ddalkkak Scheduler ===")

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{20, 18, 19}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t, err := sched.NextRun(name); err == nil && !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05")
		}
		PrintTableRow([]string{name, stats[name].Schedule, next}, widths)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	runErr := sched.RunJobSync(ctx, jobName)

	if h, err := sched.GetJobHistory(jobName); err == nil {
		if res, ok := h.LastResult(); ok {
			PrintKeyValue("Attempts", fmt.Sprint(res.Attempts), 10)
			PrintKeyValue("Duration", res.Duration.Round(time.Millisecond).String(), 10)
		}
	}
	if runErr != nil {
		return fmt.Errorf("run job: %w", runErr)
	}

	PrintSuccess(fmt.Sprintf("Job %s finished", jobName))
	return nil
}
