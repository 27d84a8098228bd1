package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

var day1 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func num(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRows() []contracts.Snapshot {
	return []contracts.Snapshot{
		{Ticker: "AAPL", Name: text("Apple Inc."), Sector: text("Technology"), Price: num("189.50"), MarketCap: num("2950000000000"), PE: num("29.1")},
		{Ticker: "XOM", Name: text("Exxon Mobil"), Sector: text("Energy"), Price: num("104.2"), PE: num("12.75")},
		{Ticker: "KO", Name: text("Coca-Cola"), Sector: text("Consumer Defensive"), Price: num("60.01")},
	}
}

// stripTimes clears store-managed timestamps for comparisons
func stripTimes(rows []contracts.Snapshot) []contracts.Snapshot {
	out := make([]contracts.Snapshot, len(rows))
	for i, r := range rows {
		r.CreatedAt, r.UpdatedAt = time.Time{}, time.Time{}
		out[i] = r
	}
	return out
}

func TestSQLite_UpsertIsIdempotent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	n, err := s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, err := s.LoadByDate(ctx, day1)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)

	second, err := s.LoadByDate(ctx, day1)
	require.NoError(t, err)

	require.Len(t, second, 3)
	assert.Equal(t, stripTimes(first), stripTimes(second))
}

func TestSQLite_KeyUniqueness(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	// 같은 배치 안의 중복 키: 마지막 값 유지
	rows := []contracts.Snapshot{
		{Ticker: "AAPL", Price: num("100")},
		{Ticker: "AAPL", Price: num("101")},
	}
	n, err := s.Upsert(ctx, day1, rows, contracts.ColumnSet{"price"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Upsert(ctx, day1, []contracts.Snapshot{{Ticker: "AAPL", Price: num("102")}}, contracts.ColumnSet{"price"})
	require.NoError(t, err)

	// 다른 날짜는 별도 키
	_, err = s.Upsert(ctx, day1.AddDate(0, 0, 1), []contracts.Snapshot{{Ticker: "AAPL", Price: num("103")}}, contracts.ColumnSet{"price"})
	require.NoError(t, err)

	got, err := s.LoadByDate(ctx, day1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "102", got[0].Price.Decimal.String())
	assert.True(t, got[0].DataDate.Equal(day1))

	latest, err := s.LatestDataDate(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Equal(day1.AddDate(0, 0, 1)))
}

func TestSQLite_AbsentVersusNull(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)

	// pe_ratio 는 쓰기 집합 밖 → 유지
	_, err = s.Upsert(ctx, day1, []contracts.Snapshot{{Ticker: "AAPL", Price: num("190")}}, contracts.ColumnSet{"price"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "AAPL", day1)
	require.NoError(t, err)
	assert.Equal(t, "190", got.Price.Decimal.String())
	assert.Equal(t, "29.1", got.PE.Decimal.String())
	assert.Equal(t, "Apple Inc.", got.Name.String)

	// pe_ratio 가 쓰기 집합 안에서 null → NULL 로 덮어씀
	_, err = s.Upsert(ctx, day1, []contracts.Snapshot{{Ticker: "AAPL"}}, contracts.ColumnSet{"pe_ratio"})
	require.NoError(t, err)

	got, err = s.Get(ctx, "AAPL", day1)
	require.NoError(t, err)
	assert.False(t, got.PE.Valid)
	assert.Equal(t, "190", got.Price.Decimal.String())
}

func TestSQLite_DecimalPrecision(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, day1, []contracts.Snapshot{{Ticker: "PREC", Price: num("123.456789012345"), MarketCap: num("98765432109876.5")}}, contracts.MetricColumns())
	require.NoError(t, err)

	got, err := s.Get(ctx, "PREC", day1)
	require.NoError(t, err)
	assert.Equal(t, "123.456789012345", got.Price.Decimal.String())
	assert.Equal(t, "98765432109876.5", got.MarketCap.Decimal.String())
}

func TestSQLite_UnknownColumn(t *testing.T) {
	s := newSQLite(t)

	_, err := s.Upsert(context.Background(), day1, sampleRows(), contracts.ColumnSet{"price", "bogus"})
	assert.True(t, contracts.IsConfigError(err))

	_, err = s.Upsert(context.Background(), day1, sampleRows(), contracts.ColumnSet{"ticker"})
	assert.True(t, contracts.IsConfigError(err))
}

func TestSQLite_FailureIsPersistenceError(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Upsert(context.Background(), day1, sampleRows(), contracts.MetricColumns())
	require.Error(t, err)

	var pe *contracts.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "upsert", pe.Op)
}

func profilesOf(t *testing.T, s *SQLite) map[string]contracts.ProfileSet {
	t.Helper()
	rows, err := s.LoadByDate(context.Background(), day1)
	require.NoError(t, err)
	out := make(map[string]contracts.ProfileSet, len(rows))
	for _, r := range rows {
		out[r.Ticker] = r.PassedProfiles
	}
	return out
}

func TestSQLite_ApplyScreening(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)

	// 1차: growth_quality + value_basic
	merged := []contracts.Snapshot{
		{Ticker: "AAPL", TotalScore: num("71.5"), FairValue: num("210"), PassedProfiles: contracts.NewProfileSet("growth_quality")},
		{Ticker: "XOM", TotalScore: num("64"), PassedProfiles: contracts.NewProfileSet("growth_quality", "value_basic")},
	}
	n, err := s.ApplyScreening(ctx, day1, []string{"growth_quality", "value_basic"}, merged)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := profilesOf(t, s)
	assert.Equal(t, contracts.ProfileSet{"growth_quality"}, got["AAPL"])
	assert.Equal(t, contracts.ProfileSet{"growth_quality", "value_basic"}, got["XOM"])
	assert.Empty(t, got["KO"])

	// 점수 쓰기가 수집 지표를 지우지 않음
	aapl, err := s.Get(ctx, "AAPL", day1)
	require.NoError(t, err)
	assert.Equal(t, "189.5", aapl.Price.Decimal.String())
	assert.Equal(t, "71.5", aapl.TotalScore.Decimal.String())
	assert.Equal(t, "210", aapl.FairValue.Decimal.String())

	// 2차: value_basic 만 재실행 → growth_quality 태그는 유지
	rerun := []contracts.Snapshot{
		{Ticker: "KO", TotalScore: num("55"), PassedProfiles: contracts.NewProfileSet("value_basic")},
	}
	for i := 0; i < 2; i++ { // 두 번 실행해도 결과 동일
		_, err = s.ApplyScreening(ctx, day1, []string{"value_basic"}, rerun)
		require.NoError(t, err)

		got = profilesOf(t, s)
		assert.Equal(t, contracts.ProfileSet{"growth_quality"}, got["AAPL"])
		assert.Equal(t, contracts.ProfileSet{"growth_quality"}, got["XOM"])
		assert.Equal(t, contracts.ProfileSet{"value_basic"}, got["KO"])
	}

	// 빈 병합 결과: 재실행된 프로파일 태그만 제거
	_, err = s.ApplyScreening(ctx, day1, []string{"growth_quality"}, nil)
	require.NoError(t, err)
	got = profilesOf(t, s)
	assert.Empty(t, got["AAPL"])
	assert.Empty(t, got["XOM"])
	assert.Equal(t, contracts.ProfileSet{"value_basic"}, got["KO"])
}

func TestSQLite_Reads(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	_, err := s.LatestDataDate(ctx)
	assert.ErrorIs(t, err, contracts.ErrNoData)

	_, err = s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)
	_, err = s.ApplyScreening(ctx, day1, []string{"value_basic"}, []contracts.Snapshot{
		{Ticker: "XOM", TotalScore: num("9.5"), ValueScore: num("80"), PassedProfiles: contracts.NewProfileSet("value_basic")},
		{Ticker: "KO", TotalScore: num("10"), ValueScore: num("70"), PassedProfiles: contracts.NewProfileSet("value_basic")},
	})
	require.NoError(t, err)

	t.Run("by profile ordered by total score", func(t *testing.T) {
		rows, err := s.ByProfile(ctx, "value_basic", day1, 0)
		require.NoError(t, err)
		// 숫자 정렬 (문자열 정렬이면 "9.5" > "10")
		assert.Equal(t, []string{"KO", "XOM"}, tickers(rows))

		rows, err = s.ByProfile(ctx, "value_basic", day1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"KO"}, tickers(rows))

		rows, err = s.ByProfile(ctx, "momentum", day1, 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("top by score puts nulls last", func(t *testing.T) {
		rows, err := s.TopByScore(ctx, day1, "value_score", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"XOM", "KO", "AAPL"}, tickers(rows))

		_, err = s.TopByScore(ctx, day1, "price", 10)
		assert.True(t, contracts.IsConfigError(err))
	})

	t.Run("sector counts", func(t *testing.T) {
		counts, err := s.SectorCounts(ctx, day1)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"Technology": 1, "Energy": 1, "Consumer Defensive": 1}, counts)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "NOPE", day1)
		assert.ErrorIs(t, err, contracts.ErrNoData)
	})
}

func TestSQLite_HistoryUndervaluedSearch(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	day2 := day1.AddDate(0, 0, 1)

	_, err := s.Upsert(ctx, day1, sampleRows(), contracts.MetricColumns())
	require.NoError(t, err)
	_, err = s.Upsert(ctx, day2, []contracts.Snapshot{{Ticker: "AAPL", Price: num("191")}}, contracts.ColumnSet{"price"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, day1, []contracts.Snapshot{
		{Ticker: "AAPL", FairValue: num("210"), Discount: num("9.8")},
		{Ticker: "KO", FairValue: num("75"), Discount: num("20")},
	}, contracts.ColumnSet{"fair_value", "discount"})
	require.NoError(t, err)

	t.Run("history newest first", func(t *testing.T) {
		rows, err := s.History(ctx, "AAPL", 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].DataDate.Equal(day2))
		assert.Equal(t, "191", rows[0].Price.Decimal.String())

		rows, err = s.History(ctx, "AAPL", 1)
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		rows, err = s.History(ctx, "NOPE", 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("most undervalued skips missing discount", func(t *testing.T) {
		// 숫자 정렬 (문자열 정렬이면 "9.8" > "20")
		rows, err := s.MostUndervalued(ctx, day1, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"KO", "AAPL"}, tickers(rows))
	})

	t.Run("search by ticker or name", func(t *testing.T) {
		rows, err := s.Search(ctx, day1, "co", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"KO"}, tickers(rows))

		rows, err = s.Search(ctx, day1, "ko", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"KO"}, tickers(rows))

		rows, err = s.Search(ctx, day1, "x", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"XOM"}, tickers(rows))

		rows, err = s.Search(ctx, day1, "_", 10)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestSQLite_DeleteBefore(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Upsert(ctx, day1.AddDate(0, 0, i), sampleRows(), contracts.ColumnSet{"price"})
		require.NoError(t, err)
	}

	n, err := s.DeleteBefore(ctx, day1.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	rows, err := s.LoadByDate(ctx, day1.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSQLite_RunLogs(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	older := contracts.NewRunLog(day1, start)
	older.Stage1Success = 3
	older.AddError("ticker ZZZ failed: timeout")
	older.Finish(contracts.RunCompleted, start.Add(time.Minute))

	newer := contracts.NewRunLog(day1, start.Add(time.Hour))
	newer.Finish(contracts.RunFailed, start.Add(time.Hour+time.Second))

	id1, err := s.RecordRunLog(ctx, older)
	require.NoError(t, err)
	id2, err := s.RecordRunLog(ctx, newer)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
	assert.Equal(t, id1, older.ID)

	logs, err := s.RecentRunLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, newer.RunKey, logs[0].RunKey)
	assert.Equal(t, contracts.RunFailed, logs[0].Status)
	assert.Equal(t, contracts.RunCompleted, logs[1].Status)
	assert.Equal(t, []string{"ticker ZZZ failed: timeout"}, logs[1].Errors)
	assert.Equal(t, 3, logs[1].Stage1Success)
	assert.True(t, logs[1].EndTime.Equal(start.Add(time.Minute)))
	assert.True(t, logs[1].CollectionDate.Equal(day1))

	n, err := s.DeleteRunLogsBefore(ctx, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func tickers(rows []contracts.Snapshot) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Ticker
	}
	return out
}
