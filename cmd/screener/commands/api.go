package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/api"
	"github.com/wonny/ddalkkak/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `조회용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                          - Health check
  GET  /api/stocks/latest-date          - 최근 데이터 날짜
  GET  /api/stocks?date=&limit=         - 종합 점수 상위
  GET  /api/stocks/profile/{profile}    - 프로파일 통과 종목
  GET  /api/stocks/top/{category}       - 카테고리 점수 상위
  GET  /api/stocks/undervalued          - 할인율 상위 (적정가 대비)
  GET  /api/stocks/search?q=            - 티커/종목명 검색
  GET  /api/stocks/{ticker}/history     - 날짜별 스냅샷 이력
  GET  /api/stocks/{ticker}?date=       - 단일 종목
  GET  /api/sectors?date=               - 섹터별 종목 수
  GET  /api/runs?limit=                 - 수집 실행 로그

Example:
  go run ./cmd/screener api
  go run ./cmd/screener api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Ddalkkak Screener API Server ===")

	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	a.log.WithFields(map[string]interface{}{
		"port":  a.cfg.Port,
		"env":   a.cfg.Env,
		"store": a.cfg.Store.Driver,
		"cache": a.cache != nil,
	}).Info("Initializing API server")

	stockHandler := handlers.NewStockHandler(a.store, a.cache, a.log)
	router := api.NewRouter(stockHandler, a.log)
	server := api.New(a.cfg, a.log, router)
	if err := server.Listen(); err != nil {
		return err
	}

	fmt.Printf("\n✅ Server running on http://%s\n", server.Addr())
	fmt.Println("\nPress Ctrl+C to stop")

	// Serve until interrupt; Run drains in-flight requests
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
