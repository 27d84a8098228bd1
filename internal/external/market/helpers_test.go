package market

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/httputil"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// linearSeries builds n bars closing at base, base+1, ... with high/low ±1
func linearSeries(n int, base float64) *Series {
	s := &Series{Symbol: "LIN"}
	for i := 0; i < n; i++ {
		c := base + float64(i)
		s.Bars = append(s.Bars, Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		})
	}
	return s
}

// seriesFromReturns compounds daily returns from a close of 100
func seriesFromReturns(rets []float64) *Series {
	s := &Series{}
	c := 100.0
	s.Bars = append(s.Bars, Bar{Date: start, Open: c, High: c, Low: c, Close: c, Volume: 1000})
	for i, r := range rets {
		c *= 1 + r
		s.Bars = append(s.Bars, Bar{Date: start.AddDate(0, 0, i+1), Open: c, High: c, Low: c, Close: c, Volume: 1000})
	}
	return s
}

func wave(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(float64(i))
	}
	return out
}

// chartJSON renders s in the chart endpoint format
func chartJSON(s *Series) []byte {
	ts := make([]int64, len(s.Bars))
	open, high, low, close, volume := make([]float64, len(s.Bars)), make([]float64, len(s.Bars)), make([]float64, len(s.Bars)), make([]float64, len(s.Bars)), make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		ts[i] = b.Date.Unix()
		open[i], high[i], low[i], close[i], volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	body := map[string]any{
		"chart": map[string]any{
			"result": []any{map[string]any{
				"meta":      map[string]any{"symbol": s.Symbol, "regularMarketPrice": s.LastPrice},
				"timestamp": ts,
				"indicators": map[string]any{
					"quote": []any{map[string]any{
						"open": open, "high": high, "low": low, "close": close, "volume": volume,
					}},
				},
			}},
			"error": nil,
		},
	}
	out, _ := json.Marshal(body)
	return out
}

// chartServer serves charts by path symbol; unknown symbols get 404
func chartServer(t *testing.T, charts map[string]*Series) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/")
		s, ok := charts[symbol]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(chartJSON(s))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testHTTP() (*httputil.Client, *logger.Logger) {
	cfg := &config.Config{Env: "test", LogLevel: "error"}
	log := logger.New(cfg)
	return httputil.New(cfg, log).DisableRetry(), log
}
