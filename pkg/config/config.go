package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig
	Store    StoreConfig

	// Redis
	Redis RedisConfig

	// Pipeline
	Collector CollectorConfig
	Market    MarketConfig
	Screening ScreeningConfig
	Retention RetentionConfig
	Schedule  ScheduleConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// StoreConfig selects the snapshot store engine
type StoreConfig struct {
	Driver     string // postgres, sqlite
	SQLitePath string
}

// CollectorConfig holds the two-stage collection settings
type CollectorConfig struct {
	Stage1Workers int           // 경량 프리로드 동시 작업 수
	Stage2Workers int           // 상세 수집 동시 작업 수
	TopK          int           // 상세 수집 대상 (거래대금 상위)
	TaskTimeout   time.Duration // 종목당 제한 시간 (0 = 없음)
	BackupDir     string        // CSV 백업 디렉토리 (빈 값 = 백업 안 함)
}

// MarketConfig holds market data source settings
type MarketConfig struct {
	UniverseURL       string
	ChartBaseURL      string
	Benchmark         string  // 베타 계산 기준 지수
	RequestsPerSecond float64 // 0 = 제한 없음
	HTTPTimeout       time.Duration
	MaxRetries        int
}

// ScreeningConfig holds screening settings
type ScreeningConfig struct {
	ProfilesFile string // 빈 값 = 내장 profiles.yaml
	ExportDir    string
}

// RetentionConfig holds data retention settings
type RetentionConfig struct {
	KeepDays int
}

// ScheduleConfig holds cron expressions (6 fields, seconds first)
type ScheduleConfig struct {
	Collection string
	Screening  string
	Cleanup    string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", "postgres"),
			SQLitePath: getEnv("SQLITE_PATH", "data/screener.db"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Collector: CollectorConfig{
			Stage1Workers: getEnvAsInt("COLLECT_STAGE1_WORKERS", 16),
			Stage2Workers: getEnvAsInt("COLLECT_STAGE2_WORKERS", 4),
			TopK:          getEnvAsInt("COLLECT_TOP_K", 12000),
			TaskTimeout:   getEnvAsDuration("COLLECT_TASK_TIMEOUT", "30s"),
			BackupDir:     getEnv("COLLECT_BACKUP_DIR", ""),
		},

		Market: MarketConfig{
			UniverseURL:       getEnv("MARKET_UNIVERSE_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
			ChartBaseURL:      getEnv("MARKET_CHART_BASE_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
			Benchmark:         getEnv("MARKET_BENCHMARK", "SPY"),
			RequestsPerSecond: getEnvAsFloat("MARKET_REQUESTS_PER_SECOND", 8),
			HTTPTimeout:       getEnvAsDuration("MARKET_HTTP_TIMEOUT", "15s"),
			MaxRetries:        getEnvAsInt("MARKET_MAX_RETRIES", 3),
		},

		Screening: ScreeningConfig{
			ProfilesFile: getEnv("SCREENING_PROFILES_FILE", ""),
			ExportDir:    getEnv("SCREENING_EXPORT_DIR", "exports"),
		},

		Retention: RetentionConfig{
			KeepDays: getEnvAsInt("RETENTION_KEEP_DAYS", 90),
		},

		Schedule: ScheduleConfig{
			Collection: getEnv("SCHEDULE_COLLECTION", "0 30 17 * * 1-5"),
			Screening:  getEnv("SCHEDULE_SCREENING", "0 30 19 * * 1-5"),
			Cleanup:    getEnv("SCHEDULE_CLEANUP", "0 0 3 * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFrom loads path (a .env file) before the usual lookup; an empty path is Load
func LoadFrom(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Store.Driver {
	case "postgres":
		// Database URL is required
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of: postgres, sqlite")
	}

	if c.Collector.Stage1Workers < 1 || c.Collector.Stage2Workers < 1 {
		return fmt.Errorf("collector worker counts must be >= 1")
	}
	if c.Collector.TopK < 0 {
		return fmt.Errorf("COLLECT_TOP_K must be >= 0")
	}
	if c.Retention.KeepDays < 1 {
		return fmt.Errorf("RETENTION_KEEP_DAYS must be >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
