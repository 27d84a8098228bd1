package screening

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// neutralScore is assigned to a metric the row does not have
const neutralScore = 50.0

// metric is one input to a sub-score
type metric struct {
	column       string
	higherBetter bool
	positiveOnly bool // 0 이하 값은 최하점 (예: 적자 기업 PER)
}

// Sub-score definitions
// ⭐ SSOT: 점수 구성 지표는 여기서만
var (
	valueMetrics = []metric{
		{column: "pe_ratio", higherBetter: false, positiveOnly: true},
		{column: "pb_ratio", higherBetter: false, positiveOnly: true},
		{column: "ps_ratio", higherBetter: false, positiveOnly: true},
		{column: "ev_ebitda", higherBetter: false, positiveOnly: true},
		{column: "fcf_yield", higherBetter: true},
		{column: "div_yield", higherBetter: true},
		{column: contracts.ColDiscount, higherBetter: true},
	}
	qualityMetrics = []metric{
		{column: "roe", higherBetter: true},
		{column: "roa", higherBetter: true},
		{column: "op_margin_ttm", higherBetter: true},
		{column: "gross_margins", higherBetter: true},
		{column: "net_margins", higherBetter: true},
	}
	growthMetrics = []metric{
		{column: "rev_yoy", higherBetter: true},
		{column: "eps_growth_3y", higherBetter: true},
		{column: "revenue_growth_3y", higherBetter: true},
		{column: "ebitda_growth_3y", higherBetter: true},
	}
	momentumMetrics = []metric{
		{column: "ret_20", higherBetter: true},
		{column: "ret_63", higherBetter: true},
		{column: "momentum_12m", higherBetter: true},
		{column: "high_52w_ratio", higherBetter: true},
	}
)

// PercentileScorer scores rows by percentile rank within the given subset.
// Sub-scores are 0~100; total = category-weighted sum.
type PercentileScorer struct {
	book *Book
}

// NewPercentileScorer creates a scorer using the book's category weights
func NewPercentileScorer(book *Book) *PercentileScorer {
	return &PercentileScorer{book: book}
}

// Score fills growth/quality/value/momentum/total scores for category
func (s *PercentileScorer) Score(ctx context.Context, rows []contracts.Snapshot, category string) ([]contracts.Snapshot, error) {
	w := s.book.WeightsOf(category)

	value := subScores(rows, valueMetrics)
	quality := subScores(rows, qualityMetrics)
	growth := subScores(rows, growthMetrics)
	momentum := subScores(rows, momentumMetrics)

	out := make([]contracts.Snapshot, len(rows))
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := rows[i].Clone()
		r.ValueScore = score(value[i])
		r.QualityScore = score(quality[i])
		r.GrowthScore = score(growth[i])
		r.MomentumScore = score(momentum[i])

		total := w.Growth*growth[i] + w.Quality*quality[i] + w.Value*value[i] + w.Momentum*momentum[i]
		r.TotalScore = score(total)
		out[i] = r
	}
	return out, nil
}

func score(x float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(x).Round(2), Valid: true}
}

// subScores averages metric percentiles per row
func subScores(rows []contracts.Snapshot, metrics []metric) []float64 {
	sums := make([]float64, len(rows))
	for _, m := range metrics {
		pct := percentiles(rows, m)
		for i := range rows {
			sums[i] += pct[i]
		}
	}
	for i := range sums {
		sums[i] /= float64(len(metrics))
	}
	return sums
}

// percentiles returns each row's mid-rank percentile (0~100) for one metric
func percentiles(rows []contracts.Snapshot, m metric) []float64 {
	col, ok := contracts.LookupColumn(m.column)
	out := make([]float64, len(rows))
	if !ok {
		for i := range out {
			out[i] = neutralScore
		}
		return out
	}

	values := make([]float64, len(rows))
	valid := make([]bool, len(rows))
	ranked := make([]float64, 0, len(rows))
	for i := range rows {
		v := col.Numeric(&rows[i])
		if !v.Valid {
			continue
		}
		x := v.Decimal.InexactFloat64()
		if m.positiveOnly && x <= 0 {
			continue
		}
		values[i], valid[i] = x, true
		ranked = append(ranked, x)
	}
	sort.Float64s(ranked)
	n := float64(len(ranked))

	for i := range rows {
		switch {
		case valid[i]:
			less := float64(sort.SearchFloat64s(ranked, values[i]))
			leq := stat.CDF(values[i], stat.Empirical, ranked, nil) * n
			p := (less + leq) / 2 / n * 100
			if !m.higherBetter {
				p = 100 - p
			}
			out[i] = p
		case m.positiveOnly && col.Numeric(&rows[i]).Valid:
			out[i] = 0
		default:
			out[i] = neutralScore
		}
	}
	return out
}
