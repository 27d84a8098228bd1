package market

import (
	"fmt"
	"time"
)

// chartResponse is the chart endpoint payload
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Bar is one daily OHLCV bar
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a chronologically ordered bar list
type Series struct {
	Symbol    string
	LastPrice float64 // 0 = 없음
	Bars      []Bar
}

// toSeries flattens the first chart result; bars with a null close are skipped
func (r *chartResponse) toSeries() (*Series, error) {
	if r.Chart.Error != nil {
		return nil, fmt.Errorf("chart error %s: %s", r.Chart.Error.Code, r.Chart.Error.Description)
	}
	if len(r.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart has no result")
	}

	res := r.Chart.Result[0]
	s := &Series{Symbol: res.Meta.Symbol, LastPrice: res.Meta.RegularMarketPrice}
	if len(res.Indicators.Quote) == 0 {
		return s, nil
	}

	q := res.Indicators.Quote[0]
	s.Bars = make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		c := at(q.Close, i)
		if c == nil {
			continue
		}
		bar := Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *c,
		}
		bar.Open = valueOr(at(q.Open, i), bar.Close)
		bar.High = valueOr(at(q.High, i), bar.Close)
		bar.Low = valueOr(at(q.Low, i), bar.Close)
		bar.Volume = valueOr(at(q.Volume, i), 0)
		s.Bars = append(s.Bars, bar)
	}
	return s, nil
}

func at(xs []*float64, i int) *float64 {
	if i >= len(xs) {
		return nil
	}
	return xs[i]
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Closes returns the close column
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high column
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume column
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Last returns the latest close, falling back to the quoted price
func (s *Series) Last() float64 {
	if n := len(s.Bars); n > 0 {
		return s.Bars[n-1].Close
	}
	return s.LastPrice
}
