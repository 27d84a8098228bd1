package contracts

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func TestProfileSet(t *testing.T) {
	tests := []struct {
		name string
		got  ProfileSet
		want ProfileSet
	}{
		{"normalize", NewProfileSet("value_basic", "growth_quality", "value_basic", ""), ProfileSet{"growth_quality", "value_basic"}},
		{"union", NewProfileSet("a", "c").Union(NewProfileSet("b", "a")), ProfileSet{"a", "b", "c"}},
		{"without", NewProfileSet("a", "b", "c").Without("b", "z"), ProfileSet{"a", "c"}},
		{"empty union", ProfileSet(nil).Union(nil), ProfileSet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.True(t, NewProfileSet("b", "a").Equal(ProfileSet{"a", "b"}))
	assert.False(t, NewProfileSet("a").Equal(ProfileSet{"a", "b"}))
	assert.True(t, NewProfileSet("x", "y").Contains("y"))
	assert.False(t, NewProfileSet("x", "y").Contains("z"))
}

func TestLightRecord_AvgVolume(t *testing.T) {
	l := LightRecord{Price: dec("50"), DollarVolume: dec("1000000")}
	assert.InDelta(t, 20000.0, l.AvgVolume(), 1e-9)

	// 가격 0 → 1e-9 하한
	zero := LightRecord{Price: dec("0"), DollarVolume: dec("1")}
	assert.InDelta(t, 1e9, zero.AvgVolume(), 1)

	assert.Equal(t, 0.0, LightRecord{}.AvgVolume())
}

func TestSnapshot_JSON(t *testing.T) {
	s := Snapshot{
		Ticker:         "AAA",
		DataDate:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Name:           sql.NullString{String: "Alpha Corp", Valid: true},
		Price:          dec("12.34"),
		MarketCap:      dec("1500000000"),
		TotalScore:     dec("81.5"),
		PassedProfiles: NewProfileSet("value_basic"),
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "AAA", raw["ticker"])
	assert.Equal(t, "2026-03-02", raw["data_date"])
	assert.Nil(t, raw["pe_ratio"], "absent numeric must render as null")
	assert.Nil(t, raw["sector"])

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Ticker, back.Ticker)
	assert.True(t, s.DataDate.Equal(back.DataDate))
	assert.True(t, back.Price.Decimal.Equal(s.Price.Decimal))
	assert.True(t, back.MarketCap.Decimal.Equal(s.MarketCap.Decimal))
	assert.False(t, back.PE.Valid)
	assert.Equal(t, s.Name, back.Name)
	assert.Equal(t, s.PassedProfiles, back.PassedProfiles)
}

func TestColumnSet_Columns(t *testing.T) {
	cols, err := ColumnSet{"price", "total_score", "price"}.Columns()
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "price", cols[0].Name)

	_, err = ColumnSet{"no_such_column"}.Columns()
	assert.True(t, IsConfigError(err))

	_, err = ColumnSet{ColTicker}.Columns()
	assert.True(t, IsConfigError(err))
}

func TestColumnRegistry(t *testing.T) {
	mc, ok := LookupColumn(ColMarketCap)
	require.True(t, ok)
	assert.True(t, mc.Scaled)

	price, ok := LookupColumn("price")
	require.True(t, ok)
	assert.False(t, price.Scaled)

	var s Snapshot
	price.SetNumeric(&s, dec("9.5"))
	assert.True(t, s.Price.Valid)
	assert.False(t, price.IsNull(&s))
	name, _ := LookupColumn("name")
	assert.True(t, name.IsNull(&s))
	assert.False(t, profilesColumn.IsNull(&s))

	// 메트릭/스크리닝 쓰기 집합은 겹치지 않는다
	for _, name := range ScreeningColumns() {
		assert.NotContains(t, MetricColumns(), name)
	}
	assert.Contains(t, FullColumns(), ColPassedProfiles)
}

func TestRunLog_ErrorCap(t *testing.T) {
	log := NewRunLog(time.Now(), time.Now())
	assert.Equal(t, RunRunning, log.Status)
	assert.NotEmpty(t, log.RunKey)

	for i := 0; i < MaxRunErrors+25; i++ {
		log.AddError(fmt.Sprintf("ticker T%d failed: timeout", i))
	}
	assert.Len(t, log.Errors, MaxRunErrors)

	log.Stage1Failed = 2
	log.Stage2Success = 7
	log.Stage2Failed = 1
	log.Finish(RunCompleted, log.StartTime.Add(time.Minute))
	assert.Equal(t, 7, log.TotalSucceeded)
	assert.Equal(t, 3, log.TotalFailed)
	assert.Equal(t, time.Minute, log.Duration())
}

func TestRunLog_FatalSurvivesCap(t *testing.T) {
	log := NewRunLog(time.Now(), time.Now())
	log.AddFatal("fetch universe: 503")
	assert.Equal(t, []string{"fetch universe: 503"}, log.Errors)

	full := NewRunLog(time.Now(), time.Now())
	for i := 0; i < MaxRunErrors+10; i++ {
		full.AddError(fmt.Sprintf("ticker T%d failed", i))
	}
	full.AddFatal("stage2: no records produced")

	require.Len(t, full.Errors, MaxRunErrors)
	assert.Equal(t, "ticker T0 failed", full.Errors[0])
	assert.Equal(t, "stage2: no records produced", full.Errors[MaxRunErrors-1])
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("boom")
	te := &TaskError{Key: "ZZZ", Stage: "stage2", Err: base}
	assert.ErrorIs(t, te, base)
	assert.Equal(t, "ticker ZZZ failed: boom", te.Error())

	pe := fmt.Errorf("collect: %w", &PersistenceError{Op: "upsert", Err: base})
	var target *PersistenceError
	assert.True(t, errors.As(pe, &target))
	assert.ErrorIs(t, pe, base)
}
