package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: 외부 협력자 인터페이스 정의는 여기서만
// 구현체는 교체 가능 (market, screening, export 패키지)

// UniverseSource lists the candidate instruments
type UniverseSource interface {
	FetchUniverse(ctx context.Context) ([]InstrumentRef, error)
}

// LightFetcher fetches cheap stage-1 data used for ranking
type LightFetcher interface {
	FetchLight(ctx context.Context, ref InstrumentRef) (*LightRecord, error)
}

// DetailFetcher fetches the expensive stage-2 record
type DetailFetcher interface {
	FetchDetail(ctx context.Context, ref InstrumentRef, price float64, avgVolume float64) (SourceRecord, error)
}

// ProfileFilter keeps rows that pass a profile's criteria
type ProfileFilter interface {
	Filter(ctx context.Context, rows []Snapshot, profile string) ([]Snapshot, error)
}

// Scorer fills the score columns for a score category
type Scorer interface {
	Score(ctx context.Context, rows []Snapshot, category string) ([]Snapshot, error)
}

// Valuer fills fair_value and discount
type Valuer interface {
	EstimateFairValue(ctx context.Context, rows []Snapshot) ([]Snapshot, error)
}

// SheetExporter writes one named sheet of rows
type SheetExporter interface {
	ExportSheet(rows []Snapshot, sheet string) error
}

// SnapshotStore is the keyed upsert store
// ⭐ SSOT: 모든 스냅샷 읽기/쓰기는 이 인터페이스를 통해서만
type SnapshotStore interface {
	// Upsert writes exactly the columns in cols for each (ticker, dataDate) key.
	// All-or-nothing per call.
	Upsert(ctx context.Context, dataDate time.Time, rows []Snapshot, cols ColumnSet) (int, error)

	// ApplyScreening writes screening columns for rows and reconciles
	// passed_profiles of every stored row on dataDate:
	// new = (stored - profilesRun) ∪ merged.
	ApplyScreening(ctx context.Context, dataDate time.Time, profilesRun []string, rows []Snapshot) (int, error)

	LoadByDate(ctx context.Context, dataDate time.Time) ([]Snapshot, error)
	LatestDataDate(ctx context.Context) (time.Time, error)
	Get(ctx context.Context, ticker string, dataDate time.Time) (*Snapshot, error)
	ByProfile(ctx context.Context, profile string, dataDate time.Time, limit int) ([]Snapshot, error)
	TopByScore(ctx context.Context, dataDate time.Time, column string, limit int) ([]Snapshot, error)
	SectorCounts(ctx context.Context, dataDate time.Time) (map[string]int, error)

	// History returns the stored snapshots of one ticker, newest date first
	History(ctx context.Context, ticker string, limit int) ([]Snapshot, error)
	// MostUndervalued returns rows with a known discount, largest first
	MostUndervalued(ctx context.Context, dataDate time.Time, limit int) ([]Snapshot, error)
	// Search matches query against ticker and name (case-insensitive substring)
	Search(ctx context.Context, dataDate time.Time, query string, limit int) ([]Snapshot, error)

	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	RecordRunLog(ctx context.Context, log *RunLog) (int64, error)
	RecentRunLogs(ctx context.Context, limit int) ([]RunLog, error)
	DeleteRunLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	EnsureSchema(ctx context.Context) error
	Close() error
}

// Observer receives progress from the pipeline and screening core.
// The core never logs directly.
type Observer interface {
	StageStarted(stage string, total int)
	TaskDone(stage string, done, total int, err error)
	StageFinished(stage string, succeeded, failed int)
	Warn(msg string, fields map[string]interface{})
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) StageStarted(string, int) {}
func (NopObserver) TaskDone(string, int, int, error) {}
func (NopObserver) StageFinished(string, int, int) {}
func (NopObserver) Warn(string, map[string]interface{}) {}
