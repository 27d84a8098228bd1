package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

// scoreCategories maps /api/stocks/top/{category} to its score column
var scoreCategories = map[string]string{
	"growth":   "growth_score",
	"quality":  "quality_score",
	"value":    "value_score",
	"momentum": "momentum_score",
}

// StockHandler serves stored snapshots, screening tags and run logs
// ⭐ SSOT: 조회 API 핸들러는 이 구조체에서만
type StockHandler struct {
	store  contracts.SnapshotStore
	cache  *redis.Cache
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler.
// cache may be nil; responses are then always read from the store.
func NewStockHandler(store contracts.SnapshotStore, cache *redis.Cache, log *logger.Logger) *StockHandler {
	return &StockHandler{
		store:  store,
		cache:  cache,
		logger: log,
	}
}

// GetLatestDate returns the most recent data date
// GET /api/stocks/latest-date
func (h *StockHandler) GetLatestDate(w http.ResponseWriter, r *http.Request) {
	date, err := h.store.LatestDataDate(r.Context())
	if errors.Is(err, contracts.ErrNoData) {
		respondError(w, http.StatusNotFound, "No data collected yet")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest data date")
		respondError(w, http.StatusInternalServerError, "Failed to get latest data date")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data_date": date.Format(dateLayout),
	})
}

// GetStocks returns the best total scores of a date
// GET /api/stocks?date=YYYY-MM-DD&limit=50
func (h *StockHandler) GetStocks(w http.ResponseWriter, r *http.Request) {
	h.topByColumn(w, r, contracts.ColTotalScore)
}

// GetTopByCategory returns the best rows of one score category
// GET /api/stocks/top/{category}?date=&limit=
func (h *StockHandler) GetTopByCategory(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	column, ok := scoreCategories[category]
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid category (valid: growth, quality, value, momentum)")
		return
	}
	h.topByColumn(w, r, column)
}

func (h *StockHandler) topByColumn(w http.ResponseWriter, r *http.Request, column string) {
	ctx := r.Context()
	limit, ok := parseLimit(r, defaultLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}
	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	day := date.Format(dateLayout)
	rows, err := cached(ctx, h.cache, redis.TopKey(column, day, limit), redis.TTLShort, func() ([]contracts.Snapshot, error) {
		return h.store.TopByScore(ctx, date, column, limit)
	})
	if err != nil {
		h.logger.WithError(err).WithField("column", column).Error("Failed to load top stocks")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stocks")
		return
	}

	if rows == nil {
		rows = []contracts.Snapshot{}
	}
	respondJSON(w, http.StatusOK, ListResponse{Success: true, DataDate: day, Count: len(rows), Data: rows})
}

// GetByProfile returns rows that passed a screening profile
// GET /api/stocks/profile/{profile}?date=&limit=
func (h *StockHandler) GetByProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := mux.Vars(r)["profile"]

	limit, ok := parseLimit(r, defaultLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}
	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	day := date.Format(dateLayout)
	rows, err := cached(ctx, h.cache, redis.ProfileKey(profile, day, limit), redis.TTLMedium, func() ([]contracts.Snapshot, error) {
		return h.store.ByProfile(ctx, profile, date, limit)
	})
	if err != nil {
		h.logger.WithError(err).WithField("profile", profile).Error("Failed to load profile stocks")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve profile stocks")
		return
	}

	if rows == nil {
		rows = []contracts.Snapshot{}
	}
	respondJSON(w, http.StatusOK, ListResponse{Success: true, DataDate: day, Count: len(rows), Data: rows})
}

// GetStock returns one snapshot
// GET /api/stocks/{ticker}?date=
func (h *StockHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))

	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	day := date.Format(dateLayout)
	snap, err := cached(ctx, h.cache, redis.SnapshotKey(ticker, day), redis.TTLShort, func() (*contracts.Snapshot, error) {
		return h.store.Get(ctx, ticker, date)
	})
	if errors.Is(err, contracts.ErrNoData) {
		respondError(w, http.StatusNotFound, "Stock not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to get stock")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stock")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    snap,
	})
}

// GetHistory returns one ticker's snapshots across data dates, newest first
// GET /api/stocks/{ticker}/history?limit=30
func (h *StockHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	limit, ok := parseLimit(r, historyLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}

	rows, err := h.store.History(r.Context(), ticker, limit)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to load stock history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stock history")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "Stock not found")
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(rows), Data: rows})
}

// GetMostUndervalued returns rows with the largest fair-value discount
// GET /api/stocks/undervalued?date=&limit=
func (h *StockHandler) GetMostUndervalued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, ok := parseLimit(r, defaultLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}
	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	day := date.Format(dateLayout)
	rows, err := cached(ctx, h.cache, redis.UndervaluedKey(day, limit), redis.TTLShort, func() ([]contracts.Snapshot, error) {
		return h.store.MostUndervalued(ctx, date, limit)
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to load undervalued stocks")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve stocks")
		return
	}

	if rows == nil {
		rows = []contracts.Snapshot{}
	}
	respondJSON(w, http.StatusOK, ListResponse{Success: true, DataDate: day, Count: len(rows), Data: rows})
}

// Search finds rows whose ticker or name contains q (캐시 없음)
// GET /api/stocks/search?q=&date=&limit=
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "Missing 'q'")
		return
	}
	limit, ok := parseLimit(r, defaultLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}
	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	rows, err := h.store.Search(r.Context(), date, q, limit)
	if err != nil {
		h.logger.WithError(err).WithField("q", q).Error("Failed to search stocks")
		respondError(w, http.StatusInternalServerError, "Failed to search stocks")
		return
	}
	if rows == nil {
		rows = []contracts.Snapshot{}
	}

	respondJSON(w, http.StatusOK, ListResponse{Success: true, DataDate: date.Format(dateLayout), Count: len(rows), Data: rows})
}

// GetSectors returns snapshot counts per sector
// GET /api/sectors?date=
func (h *StockHandler) GetSectors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	day := date.Format(dateLayout)
	counts, err := cached(ctx, h.cache, redis.SectorKey(day), redis.TTLMedium, func() (map[string]int, error) {
		return h.store.SectorCounts(ctx, date)
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to count sectors")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve sectors")
		return
	}

	respondJSON(w, http.StatusOK, ListResponse{Success: true, DataDate: day, Count: len(counts), Data: counts})
}

// GetRuns returns the most recent collection run logs (캐시 없음)
// GET /api/runs?limit=20
func (h *StockHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 20)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
		return
	}

	runs, err := h.store.RecentRunLogs(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get run logs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run logs")
		return
	}
	if runs == nil {
		runs = []contracts.RunLog{}
	}

	respondJSON(w, http.StatusOK, ListResponse{Success: true, Count: len(runs), Data: runs})
}

// resolveDate returns ?date= or the latest stored date.
// On false the error response has already been written.
func (h *StockHandler) resolveDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, ok := parseDate(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
		return time.Time{}, false
	}
	if !date.IsZero() {
		return date, true
	}

	latest, err := h.store.LatestDataDate(r.Context())
	if errors.Is(err, contracts.ErrNoData) {
		respondError(w, http.StatusNotFound, "No data collected yet")
		return time.Time{}, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest data date")
		respondError(w, http.StatusInternalServerError, "Failed to get latest data date")
		return time.Time{}, false
	}
	return latest, true
}

// cached reads key through the cache, calling load on a miss
func cached[T any](ctx context.Context, cache *redis.Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if cache == nil {
		return load()
	}

	var out T
	err := cache.GetOrSet(ctx, key, &out, ttl, func() (interface{}, error) {
		return load()
	})
	return out, err
}
