package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/store"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Ddalkkak - 종목 지표 수집 & 스크리닝",
	Long: `Ddalkkak Screener CLI

2단계 수집 파이프라인 (경량 프리로드 → 거래대금 상위 K 상세 수집) 과
다중 프로파일 스크리닝 (필터 → 적정가 → 점수 → 병합) 을 제공합니다.

Usage:
  go run ./cmd/screener [command]

Examples:
  go run ./cmd/screener collect --top-k 500
  go run ./cmd/screener screen --profile all --export-excel
  go run ./cmd/screener api
  go run ./cmd/screener scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		switch env {
		case "development", "staging", "production":
			cfg.Env = env
		default:
			return nil, fmt.Errorf("--env must be one of: development, staging, production")
		}
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// app bundles the dependencies every command opens
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store contracts.SnapshotStore
	rdb   *redis.Client
	cache *redis.Cache
}

// newApp loads config and opens the store and redis
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		store: st,
		rdb:   rdb,
	}
	if rdb.Enabled() {
		a.cache = redis.NewCache(rdb, "screener")
	}
	return a, nil
}

// Close releases the store and redis
func (a *app) Close() {
	if err := a.rdb.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
}

// parseDateFlag parses a YYYY-MM-DD flag; empty means zero time
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &contracts.ConfigError{Field: name, Message: fmt.Sprintf("invalid date %q (expected YYYY-MM-DD)", value)}
	}
	return d, nil
}

// parseProfiles splits a comma-separated --profile value
func parseProfiles(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
