package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

// dbCmd groups store maintenance commands
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "저장소 관리",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "스키마 생성 (이미 있으면 변경 없음)",
	RunE:  runDBInit,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "저장소 연결과 최근 데이터 날짜 확인",
	RunE:  runDBStatus,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbStatusCmd)
}

func runDBInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("❌ ensure schema: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Schema ready (%s)", a.cfg.Store.Driver))
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	PrintKeyValue("Driver", a.cfg.Store.Driver, 12)
	switch err := a.rdb.Ping(ctx); {
	case errors.Is(err, redis.ErrDisabled):
		PrintKeyValue("Redis", "disabled", 12)
	case err != nil:
		PrintKeyValue("Redis", "unreachable: "+err.Error(), 12)
	default:
		PrintKeyValue("Redis", a.rdb.Addr(), 12)
	}

	latest, err := a.store.LatestDataDate(ctx)
	if errors.Is(err, contracts.ErrNoData) {
		PrintKeyValue("Latest date", "-", 12)
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest data date: %w", err)
	}

	sectors, err := a.store.SectorCounts(ctx, latest)
	if err != nil {
		return fmt.Errorf("sector counts: %w", err)
	}
	total := 0
	for _, n := range sectors {
		total += n
	}
	PrintKeyValue("Latest date", latest.Format("2006-01-02"), 12)
	PrintKeyValue("Snapshots", fmt.Sprint(total), 12)
	PrintKeyValue("Sectors", fmt.Sprint(len(sectors)), 12)
	return nil
}
