package contracts

import (
	"database/sql"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one instrument's metrics for one data date
// ⭐ SSOT: (ticker, data_date) 당 한 행. 모든 저장소/스크리닝은 이 타입만 사용
//
// Numeric columns use decimal.NullDecimal: Valid=false means the value is
// absent (null), never zero.
type Snapshot struct {
	Ticker   string    `json:"ticker"`
	DataDate time.Time `json:"data_date"`

	Name     sql.NullString
	Sector   sql.NullString
	Industry sql.NullString

	// Price / liquidity (market_cap, dollar_volume: 절대 금액)
	Price        decimal.NullDecimal
	MarketCap    decimal.NullDecimal
	DollarVolume decimal.NullDecimal

	// Valuation
	PE          decimal.NullDecimal
	PEG         decimal.NullDecimal
	PB          decimal.NullDecimal
	PS          decimal.NullDecimal
	EVEBITDA    decimal.NullDecimal
	FCFYield    decimal.NullDecimal
	DivYield    decimal.NullDecimal
	PayoutRatio decimal.NullDecimal

	// Profitability
	ROE              decimal.NullDecimal
	ROA              decimal.NullDecimal
	OpMarginTTM      decimal.NullDecimal
	OperatingMargins decimal.NullDecimal
	GrossMargins     decimal.NullDecimal
	NetMargins       decimal.NullDecimal

	// Growth
	RevYoY          decimal.NullDecimal
	EPSGrowth3Y     decimal.NullDecimal
	RevenueGrowth3Y decimal.NullDecimal
	EBITDAGrowth3Y  decimal.NullDecimal

	// Technical
	SMA20         decimal.NullDecimal
	SMA50         decimal.NullDecimal
	SMA200        decimal.NullDecimal
	RSI14         decimal.NullDecimal
	MACD          decimal.NullDecimal
	MACDSignal    decimal.NullDecimal
	MACDHistogram decimal.NullDecimal
	BBPosition    decimal.NullDecimal
	ATR14         decimal.NullDecimal

	// Momentum / volatility
	Ret5          decimal.NullDecimal
	Ret20         decimal.NullDecimal
	Ret63         decimal.NullDecimal
	Momentum12M   decimal.NullDecimal
	Volatility21D decimal.NullDecimal
	High52WRatio  decimal.NullDecimal
	Low52WRatio   decimal.NullDecimal
	RVOL          decimal.NullDecimal

	// Risk / ownership
	Beta                 decimal.NullDecimal
	ShortPercent         decimal.NullDecimal
	InsiderOwnership     decimal.NullDecimal
	InstitutionOwnership decimal.NullDecimal

	// Valuation output
	FairValue decimal.NullDecimal
	Discount  decimal.NullDecimal

	// Scores (0 ~ 100)
	GrowthScore   decimal.NullDecimal
	QualityScore  decimal.NullDecimal
	ValueScore    decimal.NullDecimal
	MomentumScore decimal.NullDecimal
	TotalScore    decimal.NullDecimal

	PassedProfiles ProfileSet `json:"passed_profiles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with s
func (s Snapshot) Clone() Snapshot {
	out := s
	out.PassedProfiles = s.PassedProfiles.Clone()
	return out
}

// ProfileSet is an unordered, duplicate-free set of profile names.
// It is always kept sorted so equal sets compare equal.
type ProfileSet []string

// NewProfileSet builds a normalized set from names
func NewProfileSet(names ...string) ProfileSet {
	seen := make(map[string]struct{}, len(names))
	out := make(ProfileSet, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether name is in the set
func (p ProfileSet) Contains(name string) bool {
	i := sort.SearchStrings(p, name)
	return i < len(p) && p[i] == name
}

// Union returns p ∪ other
func (p ProfileSet) Union(other ProfileSet) ProfileSet {
	all := make([]string, 0, len(p)+len(other))
	all = append(all, p...)
	all = append(all, other...)
	return NewProfileSet(all...)
}

// Without returns p minus the given names
func (p ProfileSet) Without(names ...string) ProfileSet {
	drop := NewProfileSet(names...)
	out := make(ProfileSet, 0, len(p))
	for _, n := range p {
		if !drop.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Equal reports set equality
func (p ProfileSet) Equal(other ProfileSet) bool {
	a, b := NewProfileSet(p...), NewProfileSet(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone copies the set
func (p ProfileSet) Clone() ProfileSet {
	if p == nil {
		return nil
	}
	out := make(ProfileSet, len(p))
	copy(out, p)
	return out
}

// ProfileResult is a scored snapshot tagged with exactly one profile.
// Never persisted directly; always passes through the merger.
type ProfileResult struct {
	Profile  string
	Snapshot Snapshot
}

// InstrumentRef identifies one instrument in the universe
type InstrumentRef struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// LightRecord is the stage-1 (cheap) fetch result used for ranking
type LightRecord struct {
	Ref          InstrumentRef
	Price        decimal.NullDecimal
	DollarVolume decimal.NullDecimal // 평균 거래대금 (절대 금액)
}

// AvgVolume returns the share volume implied by dollar volume and price.
// Price is floored at 1e-9 so a zero price never divides by zero.
func (l LightRecord) AvgVolume() float64 {
	if !l.DollarVolume.Valid {
		return 0
	}
	price := 0.0
	if l.Price.Valid {
		price = l.Price.Decimal.InexactFloat64()
	}
	if price < 1e-9 {
		price = 1e-9
	}
	return l.DollarVolume.Decimal.InexactFloat64() / price
}

// SourceRecord is a raw record keyed by source field names ("Ticker", "PE", "MktCap($M)", ...)
type SourceRecord map[string]any
