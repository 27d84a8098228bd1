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

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "종목 지표 수집 (2단계 파이프라인)",
	Long: `유니버스 전체를 경량 조회한 뒤 거래대금 상위 K 종목만 상세 수집하여
(ticker, data_date) 키로 저장합니다. 같은 날짜로 다시 실행해도 결과는 동일합니다.

단계:
  1. 유니버스 조회
  2. 경량 프리로드 (가격, 거래대금)
  3. 거래대금 상위 K 선택
  4. 상세 수집 (기술지표, 수익률, 베타)
  5. 일괄 저장 + 실행 로그 기록

Example:
  go run ./cmd/screener collect
  go run ./cmd/screener collect --top-k 500 --stage2-workers 8
  go run ./cmd/screener collect --date 2026-03-02 --backup-dir backups`,
	RunE: runCollect,
}

var (
	collectDate          string
	collectTopK          int
	collectStage1Workers int
	collectStage2Workers int
	collectBackupDir     string
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectDate, "date", "", "data date (YYYY-MM-DD, default today)")
	collectCmd.Flags().IntVar(&collectTopK, "top-k", -1, "detail stage size (default COLLECT_TOP_K)")
	collectCmd.Flags().IntVar(&collectStage1Workers, "stage1-workers", 0, "stage 1 concurrency (default COLLECT_STAGE1_WORKERS)")
	collectCmd.Flags().IntVar(&collectStage2Workers, "stage2-workers", 0, "stage 2 concurrency (default COLLECT_STAGE2_WORKERS)")
	collectCmd.Flags().StringVar(&collectBackupDir, "backup-dir", "", "write a CSV backup here after a successful run")
}

func runCollect(cmd *cobra.Command, args []string) error {
	dataDate, err := parseDateFlag("date", collectDate)
	if err != nil {
		return err
	}
	if dataDate.IsZero() {
		dataDate = time.Now()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.collectorConfig()
	if collectTopK >= 0 {
		cfg.TopK = collectTopK
	}
	if collectStage1Workers > 0 {
		cfg.Stage1Workers = collectStage1Workers
	}
	if collectStage2Workers > 0 {
		cfg.Stage2Workers = collectStage2Workers
	}

	PrintJobHeader(JobMetadata{
		JobType:   "Stock Metrics Collection",
		Tag:       "collect",
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		DataDate:  dataDate.Format("2006-01-02"),
	})
	PrintKeyValue("Stage 1 workers", fmt.Sprint(cfg.Stage1Workers), 16)
	PrintKeyValue("Stage 2 workers", fmt.Sprint(cfg.Stage2Workers), 16)
	PrintKeyValue("Top K", fmt.Sprint(cfg.TopK), 16)
	PrintSeparator()

	job := a.newCollectionJob(a.newPipeline(cfg, newPrintObserver(100)))
	if collectBackupDir != "" {
		job.WithBackupDir(collectBackupDir)
	}

	res, err := job.Collect(ctx, dataDate)
	if res != nil && res.Log != nil {
		printRunLog(res.Log, res.Persisted)
		if n := len(res.Log.Errors); n > 0 {
			PrintWarning(fmt.Sprintf("%d task errors (first: %s)", n, res.Log.Errors[0]))
		}
	}
	if err != nil {
		return err
	}

	PrintJobCompletion("Collection", res.Log.Duration().Seconds())
	return nil
}

func printRunLog(log *contracts.RunLog, persisted int) {
	fmt.Println()
	for _, kv := range runLogLines(log, persisted) {
		PrintKeyValue(kv[0], kv[1], 10)
	}
	fmt.Println(strings.Repeat("─", 59))
}

// runLogLines are the summary rows of a run: totals, per stage, persisted
func runLogLines(log *contracts.RunLog, persisted int) [][2]string {
	return [][2]string{
		{"Total", fmt.Sprintf("%d attempted / %d ok / %d failed", log.TotalAttempted, log.TotalSucceeded, log.TotalFailed)},
		{"Stage 1", fmt.Sprintf("%d ok / %d failed", log.Stage1Success, log.Stage1Failed)},
		{"Stage 2", fmt.Sprintf("%d ok / %d failed", log.Stage2Success, log.Stage2Failed)},
		{"Persisted", fmt.Sprint(persisted)},
	}
}
