package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// runsCmd shows recent collection run logs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "최근 수집 실행 로그",
	RunE:  runRuns,
}

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.store.RecentRunLogs(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("load run logs: %w", err)
	}
	if len(runs) == 0 {
		PrintInfo("No collection runs recorded")
		return nil
	}

	widths := []int{10, 19, 10, 9, 13, 13, 7}
	PrintTableHeader([]string{"Date", "Started", "Status", "Duration", "Stage1 ok/x", "Stage2 ok/x", "Errors"}, widths)
	for _, r := range runs {
		PrintTableRow([]string{
			r.CollectionDate.Format("2006-01-02"),
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			string(r.Status),
			r.Duration().Round(time.Second).String(),
			fmt.Sprintf("%d/%d", r.Stage1Success, r.Stage1Failed),
			fmt.Sprintf("%d/%d", r.Stage2Success, r.Stage2Failed),
			fmt.Sprint(len(r.Errors)),
		}, widths)
	}
	return nil
}
