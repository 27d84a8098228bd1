package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/screening"
)

// screenCmd represents the screen command
var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "프로파일 스크리닝 실행",
	Long: `저장된 날짜의 데이터에 프로파일을 적용하고 결과를 병합해 저장합니다.

종목당 한 행으로 병합되며 passed_profiles 는 통과한 프로파일의 합집합입니다.
같은 프로파일을 다시 실행하면 이전 태그는 새 결과로 대체됩니다.

Example:
  go run ./cmd/screener screen
  go run ./cmd/screener screen --profile value,growth --date 2026-03-02
  go run ./cmd/screener screen --profile all --export-excel`,
	RunE: runScreen,
}

var (
	screenProfile     string
	screenDate        string
	screenExportExcel bool
	screenShow        int
)

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVar(&screenProfile, "profile", screening.AllProfiles, "profile name(s), comma separated, or 'all'")
	screenCmd.Flags().StringVar(&screenDate, "date", "", "data date (YYYY-MM-DD, default latest)")
	screenCmd.Flags().BoolVar(&screenExportExcel, "export-excel", false, "write one sheet per profile to SCREENING_EXPORT_DIR")
	screenCmd.Flags().IntVar(&screenShow, "show", 20, "merged rows to print")
}

func runScreen(cmd *cobra.Command, args []string) error {
	dataDate, err := parseDateFlag("date", screenDate)
	if err != nil {
		return err
	}
	selection := parseProfiles(screenProfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	job, _, err := a.newScreeningJob()
	if err != nil {
		return err
	}

	start := time.Now()
	PrintJobHeader(JobMetadata{
		JobType:   "Profile Screening",
		Tag:       "screen",
		Timestamp: start.Format("2006-01-02 15:04:05"),
		DataDate:  screenDate,
		Profiles:  strings.Join(selection, ", "),
	})

	sum, path, err := job.Screen(ctx, dataDate, selection, screenExportExcel)
	if err != nil {
		return err
	}

	fmt.Println()
	PrintKeyValue("Data date", sum.DataDate.Format("2006-01-02"), 10)
	PrintKeyValue("Loaded", fmt.Sprint(sum.Loaded), 10)
	for _, p := range sum.Profiles {
		PrintKeyValue(p, fmt.Sprintf("%d passed", sum.PerProfile[p]), 10)
	}
	PrintKeyValue("Merged", fmt.Sprint(len(sum.Merged.Rows)), 10)
	PrintKeyValue("Updated", fmt.Sprint(sum.Updated), 10)
	fmt.Println()

	printMergedRows(sum, screenShow)

	if n := len(sum.Merged.Divergent); n > 0 {
		PrintWarning(fmt.Sprintf("%d instruments scored differently across profiles (first profile kept)", n))
	}
	if path != "" {
		PrintSuccess("Excel saved: " + path)
	} else if screenExportExcel {
		PrintInfo("No profile produced rows; nothing exported")
	}

	PrintJobCompletion("Screening", time.Since(start).Seconds())
	return nil
}

func printMergedRows(sum *screening.Summary, limit int) {
	rows := sum.Merged.Rows
	if len(rows) == 0 {
		PrintInfo("No instrument passed the selected profiles")
		return
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	widths := []int{8, 24, 10, 12, 8, 10, 24}
	PrintTableHeader([]string{"Ticker", "Sector", "Price", "MktCap", "Score", "Discount", "Profiles"}, widths)
	for _, r := range rows {
		PrintTableRow([]string{
			r.Ticker,
			truncate(r.Sector.String, widths[1]),
			FormatDecimal(r.Price, 2),
			FormatMillions(r.MarketCap),
			FormatDecimal(r.TotalScore, 1),
			FormatDecimal(r.Discount, 3),
			strings.Join(r.PassedProfiles, ","),
		}, widths)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
