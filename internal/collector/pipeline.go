package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/mapper"
)

// State is a pipeline run state
type State string

const (
	StateInit       State = "init"
	StateStage1     State = "stage1"
	StateRanking    State = "ranking"
	StateStage2     State = "stage2"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Stage names reported to the observer and on task errors
const (
	StageUniverse = "universe"
	StageLight    = "stage1"
	StageDetail   = "stage2"
	StagePersist  = "persist"
)

// Config holds pipeline configuration
type Config struct {
	Stage1Workers int           // 1단계 (경량 조회) 동시 작업 수
	Stage2Workers int           // 2단계 (상세 조회) 동시 작업 수
	TopK          int           // 2단계 대상 상위 K
	TaskTimeout   time.Duration // 태스크별 타임아웃 (0 = 없음)
}

// DefaultConfig returns the standard collection settings
func DefaultConfig() Config {
	return Config{
		Stage1Workers: 16,
		Stage2Workers: 4,
		TopK:          DefaultTopK,
		TaskTimeout:   0,
	}
}

// Store is the part of the snapshot store the pipeline writes to
type Store interface {
	Upsert(ctx context.Context, dataDate time.Time, rows []contracts.Snapshot, cols contracts.ColumnSet) (int, error)
	RecordRunLog(ctx context.Context, log *contracts.RunLog) (int64, error)
}

// Result is the outcome of one pipeline run
type Result struct {
	State     State
	Log       *contracts.RunLog
	Records   []contracts.Snapshot // 저장된 레코드 (백업용)
	Persisted int
}

// Pipeline runs the two-stage collection
// ⭐ SSOT: 수집 파이프라인 상태 전이는 여기서만
//
//	init → stage1 → ranking → stage2 → persisting → done | failed
type Pipeline struct {
	universe contracts.UniverseSource
	light    contracts.LightFetcher
	detail   contracts.DetailFetcher
	store    Store
	observer contracts.Observer
	cfg      Config
	now      func() time.Time
}

// NewPipeline creates a pipeline. A nil observer discards progress.
func NewPipeline(
	universe contracts.UniverseSource,
	light contracts.LightFetcher,
	detail contracts.DetailFetcher,
	store Store,
	observer contracts.Observer,
	cfg Config,
) *Pipeline {
	if observer == nil {
		observer = contracts.NopObserver{}
	}
	return &Pipeline{
		universe: universe,
		light:    light,
		detail:   detail,
		store:    store,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run collects, ranks and persists one data date.
// The run log is recorded exactly once, for completed and failed runs alike.
// A failed run returns a non-nil error together with the result.
func (p *Pipeline) Run(ctx context.Context, dataDate time.Time) (*Result, error) {
	dataDate = truncateDate(dataDate)
	res := &Result{
		State: StateInit,
		Log:   contracts.NewRunLog(dataDate, p.now()),
	}

	// === Stage 1: universe + light fetch ===
	res.State = StateStage1
	refs, err := p.universe.FetchUniverse(ctx)
	if err != nil {
		return p.fail(ctx, res, fmt.Errorf("fetch universe: %w", err))
	}
	if len(refs) == 0 {
		return p.fail(ctx, res, &contracts.EmptyResultError{Stage: StageUniverse})
	}
	res.Log.TotalAttempted = len(refs)

	lights := p.runStage1(ctx, res.Log, refs)
	if len(lights) == 0 {
		return p.fail(ctx, res, &contracts.EmptyResultError{Stage: StageLight})
	}

	// === Ranking ===
	res.State = StateRanking
	subset := Rank(lights, p.cfg.TopK)

	// === Stage 2: detail fetch ===
	res.State = StateStage2
	records := p.runStage2(ctx, res.Log, subset)
	if len(records) == 0 {
		return p.fail(ctx, res, &contracts.EmptyResultError{Stage: StageDetail})
	}

	// === Persisting ===
	res.State = StatePersisting
	snaps, dropped := mapper.MapAll(records)
	if dropped > 0 {
		p.observer.Warn("Dropped records without ticker", map[string]interface{}{"dropped": dropped})
	}
	if len(snaps) == 0 {
		return p.fail(ctx, res, &contracts.EmptyResultError{Stage: StagePersist})
	}
	for i := range snaps {
		snaps[i].DataDate = dataDate
	}

	n, err := p.store.Upsert(ctx, dataDate, snaps, contracts.MetricColumns())
	if err != nil {
		var pe *contracts.PersistenceError
		if !errors.As(err, &pe) {
			err = &contracts.PersistenceError{Op: "upsert snapshots", Err: err}
		}
		return p.fail(ctx, res, err)
	}
	if n == 0 {
		return p.fail(ctx, res, &contracts.EmptyResultError{Stage: StagePersist})
	}

	res.Records = snaps
	res.Persisted = n
	res.State = StateDone
	res.Log.Finish(contracts.RunCompleted, p.now())
	p.recordLog(ctx, res.Log)

	return res, nil
}

func (p *Pipeline) runStage1(ctx context.Context, log *contracts.RunLog, refs []contracts.InstrumentRef) []*contracts.LightRecord {
	p.observer.StageStarted(StageLight, len(refs))

	outcomes := Execute(ctx, refs, p.cfg.Stage1Workers,
		func(r contracts.InstrumentRef) string { return r.Ticker },
		func(ctx context.Context, ref contracts.InstrumentRef) (*contracts.LightRecord, error) {
			rec, err := p.light.FetchLight(ctx, ref)
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, errors.New("empty light record")
			}
			if rec.Ref.Ticker == "" {
				rec.Ref = ref
			}
			return rec, nil
		},
		ExecOptions{Stage: StageLight, TaskTimeout: p.cfg.TaskTimeout, OnDone: p.progress(StageLight)},
	)

	lights := make([]*contracts.LightRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			log.Stage1Failed++
			log.AddError(o.Err.Error())
			continue
		}
		log.Stage1Success++
		lights = append(lights, o.Value)
	}

	p.observer.StageFinished(StageLight, log.Stage1Success, log.Stage1Failed)
	return lights
}

func (p *Pipeline) runStage2(ctx context.Context, log *contracts.RunLog, subset []*contracts.LightRecord) []contracts.SourceRecord {
	p.observer.StageStarted(StageDetail, len(subset))

	outcomes := Execute(ctx, subset, p.cfg.Stage2Workers,
		func(l *contracts.LightRecord) string { return l.Ref.Ticker },
		func(ctx context.Context, l *contracts.LightRecord) (contracts.SourceRecord, error) {
			price := 0.0
			if l.Price.Valid {
				price = l.Price.Decimal.InexactFloat64()
			}
			detail, err := p.detail.FetchDetail(ctx, l.Ref, price, l.AvgVolume())
			if err != nil {
				return nil, err
			}
			return mergeRecord(l, detail), nil
		},
		ExecOptions{Stage: StageDetail, TaskTimeout: p.cfg.TaskTimeout, OnDone: p.progress(StageDetail)},
	)

	records := make([]contracts.SourceRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			log.Stage2Failed++
			log.AddError(o.Err.Error())
			continue
		}
		log.Stage2Success++
		records = append(records, o.Value)
	}

	p.observer.StageFinished(StageDetail, log.Stage2Success, log.Stage2Failed)
	return records
}

// mergeRecord overlays the detail record on the stage-1 fields
func mergeRecord(l *contracts.LightRecord, detail contracts.SourceRecord) contracts.SourceRecord {
	rec := contracts.SourceRecord{mapper.SourceTicker: l.Ref.Ticker}
	if l.Ref.Name != "" {
		rec["Name"] = l.Ref.Name
	}
	if l.Ref.Sector != "" {
		rec["Sector"] = l.Ref.Sector
	}
	if l.Ref.Industry != "" {
		rec["Industry"] = l.Ref.Industry
	}
	if l.Price.Valid {
		rec["Price"] = l.Price.Decimal
	}
	if l.DollarVolume.Valid {
		rec["DollarVol($M)"] = l.DollarVolume.Decimal.Shift(-6)
	}

	for k, v := range detail {
		if v == nil {
			continue
		}
		if d, ok := v.(decimal.NullDecimal); ok && !d.Valid {
			continue
		}
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			continue
		}
		rec[k] = v
	}
	return rec
}

func (p *Pipeline) progress(stage string) func(done, total int, err error) {
	return func(done, total int, err error) {
		p.observer.TaskDone(stage, done, total, err)
	}
}

// fail finalizes a failed run and records its log best-effort
func (p *Pipeline) fail(ctx context.Context, res *Result, err error) (*Result, error) {
	res.State = StateFailed
	res.Log.AddFatal(err.Error())
	res.Log.Finish(contracts.RunFailed, p.now())
	p.recordLog(ctx, res.Log)
	return res, err
}

// recordLog writes the run log; a failure here is reported, never raised
func (p *Pipeline) recordLog(ctx context.Context, log *contracts.RunLog) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	id, err := p.store.RecordRunLog(wctx, log)
	if err != nil {
		p.observer.Warn("Failed to record run log", map[string]interface{}{
			"run_key": log.RunKey,
			"status":  string(log.Status),
			"error":   err.Error(),
		})
		return
	}
	log.ID = id
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
