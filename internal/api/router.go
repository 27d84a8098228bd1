package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/ddalkkak/backend/internal/api/handlers"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(stockHandler *handlers.StockHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Stock endpoints ({ticker} 는 마지막에 등록)
	api.HandleFunc("/stocks", stockHandler.GetStocks).Methods("GET")
	api.HandleFunc("/stocks/latest-date", stockHandler.GetLatestDate).Methods("GET")
	api.HandleFunc("/stocks/profile/{profile}", stockHandler.GetByProfile).Methods("GET")
	api.HandleFunc("/stocks/top/{category}", stockHandler.GetTopByCategory).Methods("GET")
	api.HandleFunc("/stocks/undervalued", stockHandler.GetMostUndervalued).Methods("GET")
	api.HandleFunc("/stocks/search", stockHandler.Search).Methods("GET")
	api.HandleFunc("/stocks/{ticker}/history", stockHandler.GetHistory).Methods("GET")
	api.HandleFunc("/stocks/{ticker}", stockHandler.GetStock).Methods("GET")

	api.HandleFunc("/sectors", stockHandler.GetSectors).Methods("GET")
	api.HandleFunc("/runs", stockHandler.GetRuns).Methods("GET")

	// Apply middleware (바깥쪽부터: request id → logging → recovery)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "ddalkkak-screener-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// RequestIDHeader carries the per-request id (echoed when the caller sends one)
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the status code for access logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware assigns X-Request-ID
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			entry := log.WithFields(map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   time.Since(start),
				"request_id": r.Header.Get(RequestIDHeader),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("HTTP request failed")
				return
			}
			entry.Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error":      err,
						"path":       r.URL.Path,
						"request_id": r.Header.Get(RequestIDHeader),
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"error":   "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
