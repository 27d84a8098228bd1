package market

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

const (
	tradingDaysPerYear  = 252
	dollarVolumeWindow  = 20
	minBetaObservations = 60
)

// Indicators computes the detail fields of one series.
// ⭐ SSOT: 상세 수집 기술지표 계산은 여기서만
//
// Fields are omitted when the history is too short; an omitted field
// becomes an absent value downstream, never zero.
func Indicators(s *Series, benchmark *Series) contracts.SourceRecord {
	rec := contracts.SourceRecord{}
	closes := s.Closes()
	n := len(closes)
	if n == 0 {
		return rec
	}
	last := closes[n-1]

	put(rec, "Price", last)
	if dv, ok := AvgDollarVolume(s, dollarVolumeWindow); ok {
		put(rec, "DollarVol($M)", dv/1e6)
	}

	// === Trend (go-talib) ===
	for _, p := range []struct {
		field  string
		period int
	}{{"SMA20", 20}, {"SMA50", 50}, {"SMA200", 200}} {
		if n >= p.period {
			put(rec, p.field, talib.Sma(closes, p.period)[n-1])
		}
	}

	if n > 14 {
		put(rec, "RSI_14", talib.Rsi(closes, 14)[n-1])
		put(rec, "ATR_14", talib.Atr(s.Highs(), s.Lows(), closes, 14)[n-1])
	}

	if n >= 35 {
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		put(rec, "MACD", macd[n-1])
		put(rec, "MACD_Signal", signal[n-1])
		put(rec, "MACD_Histogram", hist[n-1])
	}

	if n >= 20 {
		// MAType 0 = SMA
		upper, _, lower := talib.BBands(closes, 20, 2, 2, 0)
		width := upper[n-1] - lower[n-1]
		if width == 0 {
			put(rec, "BB_Position", 0.5)
		} else {
			put(rec, "BB_Position", (last-lower[n-1])/width)
		}
	}

	// === Momentum ===
	for _, p := range []struct {
		field string
		days  int
	}{{"RET5", 5}, {"RET20", 20}, {"RET63", 63}} {
		if r, ok := periodReturn(closes, p.days); ok {
			put(rec, p.field, r)
		}
	}
	if r, ok := periodReturn(closes, tradingDaysPerYear); ok {
		put(rec, "Momentum_12M", r)
	} else if n >= 200 && closes[0] > 0 {
		// 1년 미만 이력: 가용 구간 수익률
		put(rec, "Momentum_12M", last/closes[0]-1)
	}

	// === Volatility / range (gonum) ===
	rets := dailyReturns(closes)
	if len(rets) >= 21 {
		put(rec, "Volatility_21D", stat.StdDev(rets[len(rets)-21:], nil)*math.Sqrt(tradingDaysPerYear))
	}

	window := tail(s.Bars, tradingDaysPerYear)
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, b := range window {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	if hi > 0 {
		put(rec, "High_52W_Ratio", last/hi)
	}
	if lo > 0 && !math.IsInf(lo, 1) {
		put(rec, "Low_52W_Ratio", last/lo)
	}

	vols := s.Volumes()
	if n > dollarVolumeWindow {
		avg := stat.Mean(vols[n-1-dollarVolumeWindow:n-1], nil)
		if avg > 0 {
			put(rec, "RVOL", vols[n-1]/avg)
		}
	}

	if benchmark != nil {
		if b, ok := Beta(s, benchmark); ok {
			put(rec, "Beta", b)
		}
	}

	return rec
}

// AvgDollarVolume is the mean close × volume over the last window bars
func AvgDollarVolume(s *Series, window int) (float64, bool) {
	bars := tail(s.Bars, window)
	if len(bars) == 0 {
		return 0, false
	}
	dv := make([]float64, len(bars))
	for i, b := range bars {
		dv[i] = b.Close * b.Volume
	}
	return stat.Mean(dv, nil), true
}

// Beta regresses the series' daily returns on the benchmark's over shared dates
func Beta(s *Series, benchmark *Series) (float64, bool) {
	bench := make(map[string]float64, len(benchmark.Bars))
	for _, b := range benchmark.Bars {
		bench[dayKey(b)] = b.Close
	}

	var xs, ys []float64
	bars := tail(s.Bars, tradingDaysPerYear+1)
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		bp, ok1 := bench[dayKey(prev)]
		bc, ok2 := bench[dayKey(cur)]
		if !ok1 || !ok2 || bp <= 0 || prev.Close <= 0 {
			continue
		}
		xs = append(xs, bc/bp-1)
		ys = append(ys, cur.Close/prev.Close-1)
	}
	if len(xs) < minBetaObservations {
		return 0, false
	}

	v := stat.Variance(xs, nil)
	if v == 0 {
		return 0, false
	}
	return stat.Covariance(xs, ys, nil) / v, true
}

func periodReturn(closes []float64, days int) (float64, bool) {
	n := len(closes)
	if n <= days || closes[n-1-days] <= 0 {
		return 0, false
	}
	return closes[n-1]/closes[n-1-days] - 1, true
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

func tail(bars []Bar, n int) []Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

func dayKey(b Bar) string {
	return b.Date.Format("2006-01-02")
}

// put stores a finite value rounded to 6 places
func put(rec contracts.SourceRecord, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	rec[field] = math.Round(v*1e6) / 1e6
}
