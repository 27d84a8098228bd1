package screening

import (
	"context"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// ValuationConfig tunes the fair value blend
type ValuationConfig struct {
	MinSectorPeers int     // 섹터 중앙값 사용 최소 종목 수
	MaxGrowthPct   float64 // Graham 성장률 상한 (%)
	BaseMultiple   float64 // Graham 무성장 PER (8.5)
}

// DefaultValuationConfig returns the standard valuation settings
func DefaultValuationConfig() ValuationConfig {
	return ValuationConfig{
		MinSectorPeers: 3,
		MaxGrowthPct:   25,
		BaseMultiple:   8.5,
	}
}

// BlendValuer estimates fair value as the mean of available estimates:
//
//	Graham:     EPS × (8.5 + 2g)
//	Sector PE:  median sector PE × EPS
//	Sector PB:  median sector PB × book value per share
//
// Rows that already carry fair_value are returned unchanged; all rows serve as peers.
type BlendValuer struct {
	cfg ValuationConfig
}

// NewBlendValuer creates a valuer
func NewBlendValuer(cfg ValuationConfig) *BlendValuer {
	return &BlendValuer{cfg: cfg}
}

// EstimateFairValue fills fair_value and discount where missing
func (v *BlendValuer) EstimateFairValue(ctx context.Context, rows []contracts.Snapshot) ([]contracts.Snapshot, error) {
	sectorPE := v.sectorMedians(rows, func(s *contracts.Snapshot) decimal.NullDecimal { return s.PE })
	sectorPB := v.sectorMedians(rows, func(s *contracts.Snapshot) decimal.NullDecimal { return s.PB })

	out := make([]contracts.Snapshot, len(rows))
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := rows[i].Clone()
		if !s.FairValue.Valid {
			if fair, ok := v.estimate(&s, sectorPE, sectorPB); ok {
				s.FairValue = decimal.NullDecimal{Decimal: decimal.NewFromFloat(fair).Round(4), Valid: true}
			}
		}
		s.Discount = Discount(s.FairValue, s.Price)
		out[i] = s
	}
	return out, nil
}

func (v *BlendValuer) estimate(s *contracts.Snapshot, sectorPE, sectorPB map[string]float64) (float64, bool) {
	price, ok := positive(s.Price)
	if !ok {
		return 0, false
	}

	var estimates []float64
	sector := s.Sector.String

	if pe, ok := positive(s.PE); ok {
		eps := price / pe

		g := 0.0
		if s.EPSGrowth3Y.Valid {
			g = s.EPSGrowth3Y.Decimal.InexactFloat64() * 100
		}
		g = math.Max(0, math.Min(g, v.cfg.MaxGrowthPct))
		estimates = append(estimates, eps*(v.cfg.BaseMultiple+2*g))

		if med, ok := sectorPE[sector]; ok && s.Sector.Valid {
			estimates = append(estimates, med*eps)
		}
	}

	if pb, ok := positive(s.PB); ok {
		if med, ok := sectorPB[sector]; ok && s.Sector.Valid {
			bvps := price / pb
			estimates = append(estimates, med*bvps)
		}
	}

	if len(estimates) == 0 {
		return 0, false
	}
	return stat.Mean(estimates, nil), true
}

// sectorMedians returns the median positive value per sector with enough peers
func (v *BlendValuer) sectorMedians(rows []contracts.Snapshot, get func(*contracts.Snapshot) decimal.NullDecimal) map[string]float64 {
	bySector := make(map[string][]float64)
	for i := range rows {
		if !rows[i].Sector.Valid {
			continue
		}
		if x, ok := positive(get(&rows[i])); ok {
			bySector[rows[i].Sector.String] = append(bySector[rows[i].Sector.String], x)
		}
	}

	out := make(map[string]float64, len(bySector))
	for sector, xs := range bySector {
		if len(xs) < v.cfg.MinSectorPeers {
			continue
		}
		sort.Float64s(xs)
		out[sector] = stat.Quantile(0.5, stat.Empirical, xs, nil)
	}
	return out
}

// Discount returns (fair - price) / fair, absent when either side is missing or fair <= 0
func Discount(fair, price decimal.NullDecimal) decimal.NullDecimal {
	if !fair.Valid || !price.Valid || !fair.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	d := fair.Decimal.Sub(price.Decimal).DivRound(fair.Decimal, 6)
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func positive(d decimal.NullDecimal) (float64, bool) {
	if !d.Valid || !d.Decimal.IsPositive() {
		return 0, false
	}
	return d.Decimal.InexactFloat64(), true
}
