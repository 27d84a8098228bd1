package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// Query defaults
const (
	defaultLimit = 50
	maxLimit     = 500
	historyLimit = 30
)

// ListResponse wraps list endpoints
type ListResponse struct {
	Success  bool        `json:"success"`
	DataDate string      `json:"data_date,omitempty"`
	Count    int         `json:"count"`
	Data     interface{} `json:"data"`
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// parseLimit reads ?limit= (없으면 def, 최대 maxLimit)
func parseLimit(r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

// parseDate reads ?date=; ok is false for a malformed date, zero time when absent
func parseDate(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Time{}, true
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
