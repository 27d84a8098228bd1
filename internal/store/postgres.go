package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/database"
)

// Postgres implements contracts.SnapshotStore on a pgx pool
type Postgres struct {
	pool database.Pool
}

var _ contracts.SnapshotStore = (*Postgres)(nil)

// NewPostgres creates a Postgres store
func NewPostgres(pool database.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ============================================================================
// Writes
// ============================================================================

// Upsert writes the columns in cols for every (ticker, dataDate) key in one transaction
func (s *Postgres) Upsert(ctx context.Context, dataDate time.Time, rows []contracts.Snapshot, cols contracts.ColumnSet) (int, error) {
	columns, err := cols.Columns()
	if err != nil {
		return 0, err
	}
	rows = dedupe(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	date := dayOf(dataDate)
	cfg := snapshotUpsertConfig(columns)
	values := make([][]any, len(rows))
	for i := range rows {
		values[i] = pgRow(&rows[i], date, columns)
	}

	n, err := database.BulkUpsert(ctx, s.pool, cfg, values)
	if err != nil {
		return 0, persistErr("upsert", err)
	}
	return int(n), nil
}

// ApplyScreening writes screening columns and reconciles passed_profiles for dataDate
func (s *Postgres) ApplyScreening(ctx context.Context, dataDate time.Time, profilesRun []string, rows []contracts.Snapshot) (int, error) {
	n, err := s.applyScreening(ctx, dayOf(dataDate), profilesRun, dedupe(rows))
	if err != nil {
		return 0, persistErr("apply screening", err)
	}
	return n, nil
}

func (s *Postgres) applyScreening(ctx context.Context, date time.Time, profilesRun []string, rows []contracts.Snapshot) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: apply screening: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// 1. 재실행된 프로파일 태그 제거 (다른 프로파일 태그는 유지)
	if len(profilesRun) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE stock_snapshots
			SET passed_profiles = ARRAY(
					SELECT p FROM unnest(passed_profiles) AS p
					WHERE NOT (p = ANY($2::text[]))
					ORDER BY p
				),
				updated_at = now()
			WHERE data_date = $1 AND passed_profiles && $2::text[]
		`, date, profilesRun)
		if err != nil {
			return 0, eris.Wrap(err, "store: apply screening: strip profiles")
		}
	}

	// 2. 점수 컬럼 + 병합된 태그 (기존 태그와 합집합)
	columns, err := contracts.ColumnSet(append(contracts.ScreeningColumns(), contracts.ColPassedProfiles)).Columns()
	if err != nil {
		return 0, err
	}
	cfg := snapshotUpsertConfig(columns)
	cfg.SetExprs = map[string]string{
		contracts.ColPassedProfiles: `ARRAY(SELECT DISTINCT p FROM unnest(stock_snapshots.passed_profiles || EXCLUDED.passed_profiles) AS p ORDER BY p)`,
	}

	values := make([][]any, len(rows))
	for i := range rows {
		values[i] = pgRow(&rows[i], date, columns)
	}
	n, err := database.BulkUpsertTx(ctx, tx, cfg, values)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: apply screening: commit tx")
	}
	return int(n), nil
}

// DeleteBefore removes snapshots older than cutoff
func (s *Postgres) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stock_snapshots WHERE data_date < $1`, dayOf(cutoff))
	if err != nil {
		return 0, persistErr("delete snapshots", eris.Wrap(err, "store: delete before"))
	}
	return tag.RowsAffected(), nil
}

func snapshotUpsertConfig(columns []contracts.Column) database.UpsertConfig {
	names := make([]string, 0, len(columns)+2)
	names = append(names, contracts.ColTicker, contracts.ColDataDate)
	for _, c := range columns {
		names = append(names, c.Name)
	}
	return database.UpsertConfig{
		Table:        SnapshotTable,
		Columns:      names,
		ConflictKeys: []string{contracts.ColTicker, contracts.ColDataDate},
		TouchColumn:  "updated_at",
	}
}

// pgRow converts a snapshot to COPY values (key first, then columns)
func pgRow(s *contracts.Snapshot, date time.Time, columns []contracts.Column) []any {
	row := make([]any, 0, len(columns)+2)
	row = append(row, s.Ticker, date)
	for _, c := range columns {
		switch c.Kind {
		case contracts.TextColumn:
			v := c.Text(s)
			row = append(row, pgtype.Text{String: v.String, Valid: v.Valid})
		case contracts.NumericColumn:
			row = append(row, pgNumeric(c.Numeric(s)))
		case contracts.ProfilesColumn:
			profiles := []string(s.PassedProfiles)
			if profiles == nil {
				profiles = []string{}
			}
			row = append(row, profiles)
		}
	}
	return row
}

func pgNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: d.Decimal.Coefficient(), Exp: d.Decimal.Exponent(), Valid: true}
}

// ============================================================================
// Reads
// ============================================================================

// snapshotSelect lists every snapshot column in scan order
var snapshotSelect = func() string {
	cols := []string{contracts.ColTicker, contracts.ColDataDate}
	for _, c := range contracts.AllColumns() {
		if c.Kind == contracts.ProfilesColumn {
			cols = append(cols, "COALESCE(passed_profiles, '{}')")
			continue
		}
		cols = append(cols, c.Name)
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}()

// LatestDataDate returns the most recent stored data date
func (s *Postgres) LatestDataDate(ctx context.Context) (time.Time, error) {
	var d time.Time
	err := s.pool.QueryRow(ctx, `SELECT data_date FROM stock_snapshots ORDER BY data_date DESC LIMIT 1`).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, contracts.ErrNoData
	}
	if err != nil {
		return time.Time{}, eris.Wrap(err, "store: latest data date")
	}
	return dayOf(d), nil
}

// LoadByDate returns every snapshot of dataDate ordered by ticker
func (s *Postgres) LoadByDate(ctx context.Context, dataDate time.Time) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_snapshots WHERE data_date = $1 ORDER BY ticker`, snapshotSelect)
	return s.querySnapshots(ctx, "load by date", query, dayOf(dataDate))
}

// Get returns one snapshot; ErrNoData if absent
func (s *Postgres) Get(ctx context.Context, ticker string, dataDate time.Time) (*contracts.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_snapshots WHERE ticker = $1 AND data_date = $2`, snapshotSelect)
	snap, err := scanPgSnapshot(s.pool.QueryRow(ctx, query, ticker, dayOf(dataDate)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNoData
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get snapshot")
	}
	return &snap, nil
}

// ByProfile returns snapshots tagged with profile, best total score first
func (s *Postgres) ByProfile(ctx context.Context, profile string, dataDate time.Time, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = $1 AND $2 = ANY(passed_profiles)
		ORDER BY total_score DESC NULLS LAST, ticker
		LIMIT $3`, snapshotSelect)
	return s.querySnapshots(ctx, "by profile", query, dayOf(dataDate), profile, pgLimit(limit))
}

// TopByScore returns snapshots ordered by a score column
func (s *Postgres) TopByScore(ctx context.Context, dataDate time.Time, column string, limit int) ([]contracts.Snapshot, error) {
	if err := checkScoreColumn(column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = $1
		ORDER BY %s DESC NULLS LAST, ticker
		LIMIT $2`, snapshotSelect, pgx.Identifier{column}.Sanitize())
	return s.querySnapshots(ctx, "top by score", query, dayOf(dataDate), pgLimit(limit))
}

// History returns the snapshots of ticker across dates, newest first
func (s *Postgres) History(ctx context.Context, ticker string, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE ticker = $1
		ORDER BY data_date DESC
		LIMIT $2`, snapshotSelect)
	return s.querySnapshots(ctx, "history", query, ticker, pgLimit(limit))
}

// MostUndervalued returns rows with a discount, largest discount first
func (s *Postgres) MostUndervalued(ctx context.Context, dataDate time.Time, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = $1 AND discount IS NOT NULL
		ORDER BY discount DESC, ticker
		LIMIT $2`, snapshotSelect)
	return s.querySnapshots(ctx, "most undervalued", query, dayOf(dataDate), pgLimit(limit))
}

// Search matches ticker or name; exact ticker hits come first
func (s *Postgres) Search(ctx context.Context, dataDate time.Time, q string, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = $1
		  AND (UPPER(ticker) LIKE $2 OR UPPER(COALESCE(name, '')) LIKE $2)
		ORDER BY UPPER(ticker) <> $3, ticker
		LIMIT $4`, snapshotSelect)
	return s.querySnapshots(ctx, "search", query,
		dayOf(dataDate), likePattern(q), strings.ToUpper(strings.TrimSpace(q)), pgLimit(limit))
}

// SectorCounts returns the number of snapshots per sector on dataDate
func (s *Postgres) SectorCounts(ctx context.Context, dataDate time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(sector, 'Unknown'), COUNT(*)
		FROM stock_snapshots
		WHERE data_date = $1
		GROUP BY 1`, dayOf(dataDate))
	if err != nil {
		return nil, eris.Wrap(err, "store: sector counts")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sector string
		var n int64
		if err := rows.Scan(&sector, &n); err != nil {
			return nil, eris.Wrap(err, "store: sector counts: scan")
		}
		out[sector] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "store: sector counts: rows")
}

func (s *Postgres) querySnapshots(ctx context.Context, op, query string, args ...any) ([]contracts.Snapshot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: %s", op)
	}
	defer rows.Close()

	out := make([]contracts.Snapshot, 0)
	for rows.Next() {
		snap, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "store: %s: scan", op)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: %s: rows", op)
	}
	return out, nil
}

func scanPgSnapshot(row pgx.Row) (contracts.Snapshot, error) {
	var snap contracts.Snapshot
	var profiles []string

	dest := make([]any, 0, len(contracts.AllColumns())+4)
	dest = append(dest, &snap.Ticker, &snap.DataDate)
	for _, c := range contracts.AllColumns() {
		if c.Kind == contracts.ProfilesColumn {
			dest = append(dest, &profiles)
			continue
		}
		dest = append(dest, c.Ptr(&snap))
	}
	dest = append(dest, &snap.CreatedAt, &snap.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return contracts.Snapshot{}, err
	}
	snap.DataDate = dayOf(snap.DataDate)
	snap.PassedProfiles = contracts.NewProfileSet(profiles...)
	return snap, nil
}

// pgLimit maps limit <= 0 to NULL (LIMIT NULL = no limit)
func pgLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return int64(limit)
}

// ============================================================================
// Run logs
// ============================================================================

// RecordRunLog appends a run log and returns its id
func (s *Postgres) RecordRunLog(ctx context.Context, log *contracts.RunLog) (int64, error) {
	errs := log.Errors
	if errs == nil {
		errs = []string{}
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO collection_logs (
			run_key, collection_date, start_time, end_time,
			total_attempted, total_succeeded, total_failed,
			stage1_success, stage1_failed, stage2_success, stage2_failed,
			errors, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		log.RunKey, dayOf(log.CollectionDate), log.StartTime, nullTime(log.EndTime),
		log.TotalAttempted, log.TotalSucceeded, log.TotalFailed,
		log.Stage1Success, log.Stage1Failed, log.Stage2Success, log.Stage2Failed,
		errs, string(log.Status),
	).Scan(&id)
	if err != nil {
		return 0, persistErr("record run log", eris.Wrap(err, "store: record run log"))
	}
	log.ID = id
	return id, nil
}

// RecentRunLogs returns the newest run logs first
func (s *Postgres) RecentRunLogs(ctx context.Context, limit int) ([]contracts.RunLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_key, collection_date, start_time, end_time,
		       total_attempted, total_succeeded, total_failed,
		       stage1_success, stage1_failed, stage2_success, stage2_failed,
		       COALESCE(errors, '{}'), status, created_at
		FROM collection_logs
		ORDER BY start_time DESC, id DESC
		LIMIT $1`, pgLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "store: recent run logs")
	}
	defer rows.Close()

	out := make([]contracts.RunLog, 0)
	for rows.Next() {
		var (
			l      contracts.RunLog
			end    *time.Time
			status string
		)
		if err := rows.Scan(
			&l.ID, &l.RunKey, &l.CollectionDate, &l.StartTime, &end,
			&l.TotalAttempted, &l.TotalSucceeded, &l.TotalFailed,
			&l.Stage1Success, &l.Stage1Failed, &l.Stage2Success, &l.Stage2Failed,
			&l.Errors, &status, &l.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "store: recent run logs: scan")
		}
		if end != nil {
			l.EndTime = *end
		}
		l.Status = contracts.RunStatus(status)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: recent run logs: rows")
	}
	return out, nil
}

// DeleteRunLogsBefore removes run logs started before cutoff
func (s *Postgres) DeleteRunLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collection_logs WHERE start_time < $1`, cutoff)
	if err != nil {
		return 0, persistErr("delete run logs", eris.Wrap(err, "store: delete run logs"))
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// ============================================================================
// Schema
// ============================================================================

// EnsureSchema creates the tables if they do not exist
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "store: ensure schema")
		}
	}
	return nil
}

// Close closes the pool
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func postgresSchema() []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS stock_snapshots (\n")
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	b.WriteString("\tticker TEXT NOT NULL,\n")
	b.WriteString("\tdata_date DATE NOT NULL,\n")
	for _, c := range contracts.AllColumns() {
		switch c.Kind {
		case contracts.TextColumn:
			fmt.Fprintf(&b, "\t%s TEXT,\n", c.Name)
		case contracts.NumericColumn:
			fmt.Fprintf(&b, "\t%s NUMERIC,\n", c.Name)
		case contracts.ProfilesColumn:
			fmt.Fprintf(&b, "\t%s TEXT[] NOT NULL DEFAULT '{}',\n", c.Name)
		}
	}
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("\tupdated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("\tUNIQUE (ticker, data_date)\n)")

	return []string{
		b.String(),
		`CREATE INDEX IF NOT EXISTS idx_stock_snapshots_date ON stock_snapshots (data_date)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_snapshots_profiles ON stock_snapshots USING GIN (passed_profiles)`,
		`CREATE TABLE IF NOT EXISTS collection_logs (
			id BIGSERIAL PRIMARY KEY,
			run_key TEXT NOT NULL,
			collection_date DATE NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			total_attempted INTEGER NOT NULL DEFAULT 0,
			total_succeeded INTEGER NOT NULL DEFAULT 0,
			total_failed INTEGER NOT NULL DEFAULT 0,
			stage1_success INTEGER NOT NULL DEFAULT 0,
			stage1_failed INTEGER NOT NULL DEFAULT 0,
			stage2_success INTEGER NOT NULL DEFAULT 0,
			stage2_failed INTEGER NOT NULL DEFAULT 0,
			errors TEXT[] NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_logs_start ON collection_logs (start_time DESC)`,
	}
}
