package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/internal/api/handlers"
	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/store"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

var (
	day1 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
)

func num(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

// seededStore holds three rows on day1 and one on day2
func seededStore(t *testing.T) *store.SQLite {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	rows := []contracts.Snapshot{
		{Ticker: "AAPL", Name: text("Apple Inc."), Sector: text("Technology"), Price: num("190"), Discount: num("12.5"), TotalScore: num("81"), GrowthScore: num("60"),
			PassedProfiles: contracts.NewProfileSet("quality")},
		{Ticker: "MSFT", Name: text("Microsoft Corporation"), Sector: text("Technology"), Price: num("410"), Discount: num("30"), TotalScore: num("88"), GrowthScore: num("75"),
			PassedProfiles: contracts.NewProfileSet("quality", "growth")},
		{Ticker: "XOM", Name: text("Exxon Mobil Corporation"), Sector: text("Energy"), Price: num("104"), TotalScore: num("55"), GrowthScore: num("90")},
	}
	_, err = s.Upsert(ctx, day1, rows, contracts.FullColumns())
	require.NoError(t, err)

	_, err = s.Upsert(ctx, day2, []contracts.Snapshot{{Ticker: "AAPL", Sector: text("Technology"), Price: num("192")}}, contracts.MetricColumns())
	require.NoError(t, err)

	run := contracts.NewRunLog(day2, day2.Add(17*time.Hour))
	run.TotalAttempted, run.TotalSucceeded = 1, 1
	run.Finish(contracts.RunCompleted, day2.Add(18*time.Hour))
	_, err = s.RecordRunLog(ctx, run)
	require.NoError(t, err)
	return s
}

func newTestRouter(t *testing.T, cache *redis.Cache) (http.Handler, *store.SQLite) {
	t.Helper()
	s := seededStore(t)
	log := testLogger()
	return NewRouter(handlers.NewStockHandler(s, cache, log), log), s
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func tickers(t *testing.T, body map[string]interface{}) []string {
	t.Helper()
	data, ok := body["data"].([]interface{})
	require.True(t, ok, "data is not a list: %v", body["data"])
	out := make([]string, 0, len(data))
	for _, item := range data {
		out = append(out, item.(map[string]interface{})["ticker"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ddalkkak-screener-api", body["service"])
}

func TestLatestDate(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/latest-date")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-03", body["data_date"])
}

func TestLatestDate_Empty(t *testing.T) {
	s, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer s.Close()
	log := testLogger()
	h := NewRouter(handlers.NewStockHandler(s, nil, log), log)

	code, body := get(t, h, "/api/stocks/latest-date")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["error"])

	code, _ = get(t, h, "/api/stocks")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStocks_OrderedByTotalScore(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks?date=2026-03-02&limit=2")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-02", body["data_date"])
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, []string{"MSFT", "AAPL"}, tickers(t, body))
}

func TestStocks_DefaultsToLatestDate(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-03", body["data_date"])
	assert.Equal(t, []string{"AAPL"}, tickers(t, body))
}

func TestStocks_BadQuery(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, _ := get(t, h, "/api/stocks?date=03/02/2026")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, h, "/api/stocks?limit=-3")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, h, "/api/stocks?limit=abc")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTopByCategory(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/top/growth?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"XOM", "MSFT", "AAPL"}, tickers(t, body))

	code, _ = get(t, h, "/api/stocks/top/dividends?date=2026-03-02")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestByProfile(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/profile/quality?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"MSFT", "AAPL"}, tickers(t, body))

	code, body = get(t, h, "/api/stocks/profile/growth?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"MSFT"}, tickers(t, body))

	code, body = get(t, h, "/api/stocks/profile/value?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
	assert.Empty(t, tickers(t, body))
}

func TestGetStock(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/msft?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "MSFT", data["ticker"])
	assert.Equal(t, float64(410), data["price"])
	assert.Equal(t, []interface{}{"growth", "quality"}, data["passed_profiles"])
	assert.Nil(t, data["pe_ratio"])

	code, _ = get(t, h, "/api/stocks/ZZZZ?date=2026-03-02")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHistory(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/aapl/history")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
	data := body["data"].([]interface{})
	assert.Equal(t, float64(192), data[0].(map[string]interface{})["price"])
	assert.Equal(t, float64(190), data[1].(map[string]interface{})["price"])

	code, body = get(t, h, "/api/stocks/AAPL/history?limit=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = get(t, h, "/api/stocks/ZZZZ/history")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMostUndervalued(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/undervalued?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	// XOM 은 할인율 없음
	assert.Equal(t, []string{"MSFT", "AAPL"}, tickers(t, body))

	code, body = get(t, h, "/api/stocks/undervalued")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2026-03-03", body["data_date"])
	assert.Empty(t, tickers(t, body))
}

func TestSearch(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/stocks/search?q=corporation&date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"MSFT", "XOM"}, tickers(t, body))

	code, body = get(t, h, "/api/stocks/search?q=xom&date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"XOM"}, tickers(t, body))

	// LIKE 와일드카드는 문자 그대로
	code, body = get(t, h, "/api/stocks/search?q=%25&date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, tickers(t, body))

	code, _ = get(t, h, "/api/stocks/search?q=+")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSectors(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/sectors?date=2026-03-02")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"Technology": float64(2), "Energy": float64(1)}, body["data"])
}

func TestRuns(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	code, body := get(t, h, "/api/runs?limit=5")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	run := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "completed", run["status"])
	assert.Equal(t, float64(1), run["total_succeeded"])
}

func TestResponsesAreCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb, err := redis.New(&config.Config{Redis: config.RedisConfig{Host: mr.Host(), Port: mr.Port(), Enabled: true}})
	require.NoError(t, err)
	defer rdb.Close()

	h, s := newTestRouter(t, redis.NewCache(rdb, "screener"))

	_, body := get(t, h, "/api/stocks/AAPL?date=2026-03-02")
	assert.Equal(t, float64(190), body["data"].(map[string]interface{})["price"])

	_, err = s.Upsert(context.Background(), day1, []contracts.Snapshot{{Ticker: "AAPL", Price: num("999")}}, contracts.ColumnSet{"price"})
	require.NoError(t, err)

	_, body = get(t, h, "/api/stocks/AAPL?date=2026-03-02")
	assert.Equal(t, float64(190), body["data"].(map[string]interface{})["price"], "served from cache")

	mr.FastForward(2 * time.Minute)
	_, body = get(t, h, "/api/stocks/AAPL?date=2026-03-02")
	assert.Equal(t, float64(999), body["data"].(map[string]interface{})["price"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	code, body := get(t, h, "/anything")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestRequestID(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "nightly-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "nightly-42", rec.Header().Get(RequestIDHeader))
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, sr.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
