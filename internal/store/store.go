package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/database"
)

// Table names
const (
	SnapshotTable = "stock_snapshots"
	RunLogTable   = "collection_logs"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const dateLayout = "2006-01-02"

// scoreColumns may be used with TopByScore
var scoreColumns = map[string]bool{
	"growth_score":          true,
	"quality_score":         true,
	"value_score":           true,
	"momentum_score":        true,
	contracts.ColTotalScore: true,
}

// Open creates the configured snapshot store
// ⭐ SSOT: 저장소 드라이버 선택은 여기서만
func Open(ctx context.Context, cfg *config.Config) (contracts.SnapshotStore, error) {
	switch cfg.Store.Driver {
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case DriverPostgres, "":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgres(pool), nil
	default:
		return nil, &contracts.ConfigError{Field: "STORE_DRIVER", Message: fmt.Sprintf("unknown driver %q", cfg.Store.Driver)}
	}
}

// dayOf truncates t to its UTC calendar day
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dedupe keeps the last row per ticker, in first-seen order
func dedupe(rows []contracts.Snapshot) []contracts.Snapshot {
	idx := make(map[string]int, len(rows))
	out := make([]contracts.Snapshot, 0, len(rows))
	for _, r := range rows {
		if r.Ticker == "" {
			continue
		}
		if i, ok := idx[r.Ticker]; ok {
			out[i] = r
			continue
		}
		idx[r.Ticker] = len(out)
		out = append(out, r)
	}
	return out
}

// reconcile computes passed_profiles after a screening run:
// (stored - profilesRun) ∪ merged
func reconcile(stored contracts.ProfileSet, profilesRun []string, merged contracts.ProfileSet) contracts.ProfileSet {
	return stored.Without(profilesRun...).Union(merged)
}

// likePattern builds an upper-cased substring LIKE pattern, escaping % and _
func likePattern(q string) string {
	q = strings.ToUpper(strings.TrimSpace(q))
	q = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(q)
	return "%" + q + "%"
}

func checkScoreColumn(column string) error {
	if !scoreColumns[column] {
		return &contracts.ConfigError{Field: "column", Message: fmt.Sprintf("%q is not a score column", column)}
	}
	return nil
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &contracts.PersistenceError{Op: op, Err: err}
}
