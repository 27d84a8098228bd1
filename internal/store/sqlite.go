package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// fixed width so text ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements contracts.SnapshotStore on an embedded SQLite file.
// Numerics are stored as decimal text (no float rounding); passed_profiles as a JSON array.
type SQLite struct {
	db *sql.DB
}

var _ contracts.SnapshotStore = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 단일 연결: 인메모리 DB 공유 + 쓰기 직렬화
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ============================================================================
// Writes
// ============================================================================

// Upsert writes the columns in cols for every (ticker, dataDate) key in one transaction
func (s *SQLite) Upsert(ctx context.Context, dataDate time.Time, rows []contracts.Snapshot, cols contracts.ColumnSet) (int, error) {
	columns, err := cols.Columns()
	if err != nil {
		return 0, err
	}
	rows = dedupe(rows)
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		return upsertRows(ctx, tx, dayOf(dataDate), rows, columns)
	})
	if err != nil {
		return 0, persistErr("upsert", err)
	}
	return n, nil
}

// ApplyScreening writes screening columns and reconciles passed_profiles for dataDate
func (s *SQLite) ApplyScreening(ctx context.Context, dataDate time.Time, profilesRun []string, rows []contracts.Snapshot) (int, error) {
	date := dayOf(dataDate)
	rows = dedupe(rows)

	n, err := s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		stored, err := loadProfiles(ctx, tx, date)
		if err != nil {
			return 0, err
		}

		merged := make(map[string]bool, len(rows))
		for i := range rows {
			merged[rows[i].Ticker] = true
			rows[i].PassedProfiles = reconcile(stored[rows[i].Ticker], profilesRun, rows[i].PassedProfiles)
		}

		// 병합 결과에 없는 종목: 재실행 프로파일 태그만 제거
		for ticker, profiles := range stored {
			if merged[ticker] {
				continue
			}
			next := reconcile(profiles, profilesRun, nil)
			if next.Equal(profiles) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE stock_snapshots SET passed_profiles = ?, updated_at = ? WHERE ticker = ? AND data_date = ?`,
				profilesJSON(next), nowText(), ticker, date.Format(dateLayout),
			); err != nil {
				return 0, eris.Wrap(err, "store: apply screening: strip profiles")
			}
		}

		columns, err := contracts.ColumnSet(append(contracts.ScreeningColumns(), contracts.ColPassedProfiles)).Columns()
		if err != nil {
			return 0, err
		}
		return upsertRows(ctx, tx, date, rows, columns)
	})
	if err != nil {
		return 0, persistErr("apply screening", err)
	}
	return n, nil
}

func loadProfiles(ctx context.Context, tx *sql.Tx, date time.Time) (map[string]contracts.ProfileSet, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ticker, passed_profiles FROM stock_snapshots WHERE data_date = ?`, date.Format(dateLayout))
	if err != nil {
		return nil, eris.Wrap(err, "store: load profiles")
	}
	defer rows.Close()

	out := make(map[string]contracts.ProfileSet)
	for rows.Next() {
		var ticker, raw string
		if err := rows.Scan(&ticker, &raw); err != nil {
			return nil, eris.Wrap(err, "store: load profiles: scan")
		}
		profiles, err := parseProfiles(raw)
		if err != nil {
			return nil, err
		}
		out[ticker] = profiles
	}
	return out, eris.Wrap(rows.Err(), "store: load profiles: rows")
}

func upsertRows(ctx context.Context, tx *sql.Tx, date time.Time, rows []contracts.Snapshot, columns []contracts.Column) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	names := make([]string, 0, len(columns)+4)
	names = append(names, contracts.ColTicker, contracts.ColDataDate)
	sets := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		names = append(names, c.Name)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.Name, c.Name))
	}
	names = append(names, "created_at", "updated_at")
	sets = append(sets, "updated_at = excluded.updated_at")

	query := fmt.Sprintf(
		"INSERT INTO stock_snapshots (%s) VALUES (%s) ON CONFLICT (ticker, data_date) DO UPDATE SET %s",
		strings.Join(names, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
		strings.Join(sets, ", "),
	)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "store: upsert: prepare")
	}
	defer stmt.Close()

	now := nowText()
	day := date.Format(dateLayout)
	for i := range rows {
		args := make([]any, 0, len(names))
		args = append(args, rows[i].Ticker, day)
		for _, c := range columns {
			args = append(args, sqliteValue(&rows[i], c))
		}
		args = append(args, now, now)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "store: upsert %s", rows[i].Ticker)
		}
	}
	return len(rows), nil
}

func sqliteValue(s *contracts.Snapshot, c contracts.Column) any {
	switch c.Kind {
	case contracts.TextColumn:
		return c.Text(s)
	case contracts.NumericColumn:
		return c.Numeric(s)
	default:
		return profilesJSON(s.PassedProfiles)
	}
}

// DeleteBefore removes snapshots older than cutoff
func (s *SQLite) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM stock_snapshots WHERE data_date < ?`, dayOf(cutoff).Format(dateLayout))
	if err != nil {
		return 0, persistErr("delete snapshots", eris.Wrap(err, "store: delete before"))
	}
	return res.RowsAffected()
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := fn(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "store: commit tx")
	}
	return n, nil
}

// ============================================================================
// Reads
// ============================================================================

var sqliteSelect = func() string {
	cols := []string{contracts.ColTicker, contracts.ColDataDate}
	for _, c := range contracts.AllColumns() {
		cols = append(cols, c.Name)
	}
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}()

// LatestDataDate returns the most recent stored data date
func (s *SQLite) LatestDataDate(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data_date FROM stock_snapshots ORDER BY data_date DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, contracts.ErrNoData
	}
	if err != nil {
		return time.Time{}, eris.Wrap(err, "store: latest data date")
	}
	return time.Parse(dateLayout, raw)
}

// LoadByDate returns every snapshot of dataDate ordered by ticker
func (s *SQLite) LoadByDate(ctx context.Context, dataDate time.Time) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_snapshots WHERE data_date = ? ORDER BY ticker`, sqliteSelect)
	return s.querySnapshots(ctx, "load by date", query, dayOf(dataDate).Format(dateLayout))
}

// Get returns one snapshot; ErrNoData if absent
func (s *SQLite) Get(ctx context.Context, ticker string, dataDate time.Time) (*contracts.Snapshot, error) {
	query := fmt.Sprintf(`SELECT %s FROM stock_snapshots WHERE ticker = ? AND data_date = ?`, sqliteSelect)
	snap, err := scanSQLiteSnapshot(s.db.QueryRowContext(ctx, query, ticker, dayOf(dataDate).Format(dateLayout)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNoData
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get snapshot")
	}
	return &snap, nil
}

// ByProfile returns snapshots tagged with profile, best total score first
func (s *SQLite) ByProfile(ctx context.Context, profile string, dataDate time.Time, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = ? AND EXISTS (SELECT 1 FROM json_each(passed_profiles) WHERE value = ?)
		ORDER BY total_score IS NULL, CAST(total_score AS REAL) DESC, ticker
		LIMIT ?`, sqliteSelect)
	return s.querySnapshots(ctx, "by profile", query, dayOf(dataDate).Format(dateLayout), profile, sqliteLimit(limit))
}

// TopByScore returns snapshots ordered by a score column
func (s *SQLite) TopByScore(ctx context.Context, dataDate time.Time, column string, limit int) ([]contracts.Snapshot, error) {
	if err := checkScoreColumn(column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = ?
		ORDER BY %s IS NULL, CAST(%s AS REAL) DESC, ticker
		LIMIT ?`, sqliteSelect, column, column)
	return s.querySnapshots(ctx, "top by score", query, dayOf(dataDate).Format(dateLayout), sqliteLimit(limit))
}

// History returns the snapshots of ticker across dates, newest first
func (s *SQLite) History(ctx context.Context, ticker string, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE ticker = ?
		ORDER BY data_date DESC
		LIMIT ?`, sqliteSelect)
	return s.querySnapshots(ctx, "history", query, ticker, sqliteLimit(limit))
}

// MostUndervalued returns rows with a discount, largest discount first
func (s *SQLite) MostUndervalued(ctx context.Context, dataDate time.Time, limit int) ([]contracts.Snapshot, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = ? AND discount IS NOT NULL
		ORDER BY CAST(discount AS REAL) DESC, ticker
		LIMIT ?`, sqliteSelect)
	return s.querySnapshots(ctx, "most undervalued", query, dayOf(dataDate).Format(dateLayout), sqliteLimit(limit))
}

// Search matches ticker or name; exact ticker hits come first
func (s *SQLite) Search(ctx context.Context, dataDate time.Time, q string, limit int) ([]contracts.Snapshot, error) {
	pattern := likePattern(q)
	query := fmt.Sprintf(`
		SELECT %s FROM stock_snapshots
		WHERE data_date = ?
		  AND (UPPER(ticker) LIKE ? ESCAPE '\' OR UPPER(COALESCE(name, '')) LIKE ? ESCAPE '\')
		ORDER BY UPPER(ticker) <> ?, ticker
		LIMIT ?`, sqliteSelect)
	return s.querySnapshots(ctx, "search", query,
		dayOf(dataDate).Format(dateLayout), pattern, pattern, strings.ToUpper(strings.TrimSpace(q)), sqliteLimit(limit))
}

// SectorCounts returns the number of snapshots per sector on dataDate
func (s *SQLite) SectorCounts(ctx context.Context, dataDate time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(sector, 'Unknown'), COUNT(*)
		FROM stock_snapshots
		WHERE data_date = ?
		GROUP BY 1`, dayOf(dataDate).Format(dateLayout))
	if err != nil {
		return nil, eris.Wrap(err, "store: sector counts")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sector string
		var n int
		if err := rows.Scan(&sector, &n); err != nil {
			return nil, eris.Wrap(err, "store: sector counts: scan")
		}
		out[sector] = n
	}
	return out, eris.Wrap(rows.Err(), "store: sector counts: rows")
}

func (s *SQLite) querySnapshots(ctx context.Context, op, query string, args ...any) ([]contracts.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: %s", op)
	}
	defer rows.Close()

	out := make([]contracts.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSnapshot(row rowScanner) (contracts.Snapshot, error) {
	var (
		snap             contracts.Snapshot
		day              string
		profiles         string
		created, updated string
	)

	dest := make([]any, 0, len(contracts.AllColumns())+4)
	dest = append(dest, &snap.Ticker, &day)
	for _, c := range contracts.AllColumns() {
		if c.Kind == contracts.ProfilesColumn {
			dest = append(dest, &profiles)
			continue
		}
		dest = append(dest, c.Ptr(&snap))
	}
	dest = append(dest, &created, &updated)

	if err := row.Scan(dest...); err != nil {
		return contracts.Snapshot{}, err
	}

	var err error
	if snap.DataDate, err = time.Parse(dateLayout, day); err != nil {
		return contracts.Snapshot{}, fmt.Errorf("data_date: %w", err)
	}
	if snap.PassedProfiles, err = parseProfiles(profiles); err != nil {
		return contracts.Snapshot{}, err
	}
	snap.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	snap.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
	return snap, nil
}

// sqliteLimit maps limit <= 0 to -1 (no limit)
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func profilesJSON(p contracts.ProfileSet) string {
	if len(p) == 0 {
		return "[]"
	}
	b, _ := json.Marshal([]string(contracts.NewProfileSet(p...)))
	return string(b)
}

func parseProfiles(raw string) (contracts.ProfileSet, error) {
	if raw == "" {
		return contracts.ProfileSet{}, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("passed_profiles: %w", err)
	}
	return contracts.NewProfileSet(names...), nil
}

func nowText() string {
	return time.Now().UTC().Format(sqliteTimeLayout)
}

// ============================================================================
// Run logs
// ============================================================================

// RecordRunLog appends a run log and returns its id
func (s *SQLite) RecordRunLog(ctx context.Context, log *contracts.RunLog) (int64, error) {
	errs := log.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return 0, persistErr("record run log", err)
	}

	var end any
	if !log.EndTime.IsZero() {
		end = log.EndTime.UTC().Format(sqliteTimeLayout)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_logs (
			run_key, collection_date, start_time, end_time,
			total_attempted, total_succeeded, total_failed,
			stage1_success, stage1_failed, stage2_success, stage2_failed,
			errors, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunKey, dayOf(log.CollectionDate).Format(dateLayout), log.StartTime.UTC().Format(sqliteTimeLayout), end,
		log.TotalAttempted, log.TotalSucceeded, log.TotalFailed,
		log.Stage1Success, log.Stage1Failed, log.Stage2Success, log.Stage2Failed,
		string(errsJSON), string(log.Status), nowText(),
	)
	if err != nil {
		return 0, persistErr("record run log", eris.Wrap(err, "store: record run log"))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistErr("record run log", err)
	}
	log.ID = id
	return id, nil
}

// RecentRunLogs returns the newest run logs first
func (s *SQLite) RecentRunLogs(ctx context.Context, limit int) ([]contracts.RunLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_key, collection_date, start_time, end_time,
		       total_attempted, total_succeeded, total_failed,
		       stage1_success, stage1_failed, stage2_success, stage2_failed,
		       errors, status, created_at
		FROM  collection_logs
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, sqliteLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "store: recent run logs")
	}
	defer rows.Close()

	out := make([]contracts.RunLog, 0)
	for rows.Next() {
		var (
			l                   contracts.RunLog
			day, start, created string
			end                 sql.NullString
			errsJSON, status    string
		)
		if err := rows.Scan(
			&l.ID, &l.RunKey, &day, &start, &end,
			&l.TotalAttempted, &l.TotalSucceeded, &l.TotalFailed,
			&l.Stage1Success, &l.Stage1Failed, &l.Stage2Success, &l.Stage2Failed,
			&errsJSON, &status, &created,
		); err != nil {
			return nil, eris.Wrap(err, "store: recent run logs: scan")
		}
		l.CollectionDate, _ = time.Parse(dateLayout, day)
		l.StartTime, _ = time.Parse(sqliteTimeLayout, start)
		l.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
		if end.Valid {
			l.EndTime, _ = time.Parse(sqliteTimeLayout, end.String)
		}
		if err := json.Unmarshal([]byte(errsJSON), &l.Errors); err != nil {
			return nil, eris.Wrap(err, "store: recent run logs: errors")
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
func (s *SQLite) DeleteRunLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collection_logs WHERE start_time < ?`, cutoff.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return 0, persistErr("delete run logs", eris.Wrap(err, "store: delete run logs"))
	}
	return res.RowsAffected()
}

// ============================================================================
// Schema
// ============================================================================

// EnsureSchema creates the tables if they do not exist
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "store: ensure schema")
		}
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqliteSchema() []string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS stock_snapshots (\n")
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\tticker TEXT NOT NULL,\n")
	b.WriteString("\tdata_date TEXT NOT NULL,\n")
	for _, c := range contracts.AllColumns() {
		if c.Kind == contracts.ProfilesColumn {
			fmt.Fprintf(&b, "\t%s TEXT NOT NULL DEFAULT '[]',\n", c.Name)
			continue
		}
		// 숫자도 TEXT: NUMERIC affinity 는 REAL 로 변환되어 정밀도 손실
		fmt.Fprintf(&b, "\t%s TEXT,\n", c.Name)
	}
	b.WriteString("\tcreated_at TEXT NOT NULL,\n")
	b.WriteString("\tupdated_at TEXT NOT NULL,\n")
	b.WriteString("\tUNIQUE (ticker, data_date)\n)")

	return []string{
		b.String(),
		`CREATE INDEX IF NOT EXISTS idx_stock_snapshots_date ON stock_snapshots (data_date)`,
		`CREATE TABLE IF NOT EXISTS collection_logs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_key         TEXT NOT NULL,
			collection_date TEXT NOT NULL,
			start_time      TEXT NOT NULL,
			end_time        TEXT,
			total_attempted INTEGER NOT NULL DEFAULT 0,
			total_succeeded INTEGER NOT NULL DEFAULT 0,
			total_failed    INTEGER NOT NULL DEFAULT 0,
			stage1_success  INTEGER NOT NULL DEFAULT 0,
			stage1_failed   INTEGER NOT NULL DEFAULT 0,
			stage2_success  INTEGER NOT NULL DEFAULT 0,
			stage2_failed   INTEGER NOT NULL DEFAULT 0,
			errors          TEXT NOT NULL DEFAULT '[]',
			status          TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collection_logs_start ON collection_logs (start_time)`,
	}
}
