package contracts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnKind is the storage kind of a snapshot column
type ColumnKind int

const (
	TextColumn ColumnKind = iota
	NumericColumn
	ProfilesColumn
)

// Column describes one persisted snapshot column.
// ⭐ SSOT: 컬럼 목록은 여기서만 정의 (mapper, store, export 모두 이 테이블 사용)
type Column struct {
	Name string
	Kind ColumnKind

	// Scaled columns are expressed in millions at the source and the screening view.
	Scaled bool

	text func(*Snapshot) *sql.NullString
	num  func(*Snapshot) *decimal.NullDecimal
}

// Numeric returns the column value of s (Valid=false for text columns)
func (c Column) Numeric(s *Snapshot) decimal.NullDecimal {
	if c.num == nil {
		return decimal.NullDecimal{}
	}
	return *c.num(s)
}

// SetNumeric assigns v to the column of s
func (c Column) SetNumeric(s *Snapshot, v decimal.NullDecimal) {
	if c.num != nil {
		*c.num(s) = v
	}
}

// Text returns the column value of s (Valid=false for numeric columns)
func (c Column) Text(s *Snapshot) sql.NullString {
	if c.text == nil {
		return sql.NullString{}
	}
	return *c.text(s)
}

// SetText assigns v to the column of s
func (c Column) SetText(s *Snapshot, v sql.NullString) {
	if c.text != nil {
		*c.text(s) = v
	}
}

// Ptr returns the address of the column field in s (scan destination)
func (c Column) Ptr(s *Snapshot) any {
	switch c.Kind {
	case TextColumn:
		return c.text(s)
	case NumericColumn:
		return c.num(s)
	default:
		return &s.PassedProfiles
	}
}

// IsNull reports whether the column of s holds no value
func (c Column) IsNull(s *Snapshot) bool {
	switch c.Kind {
	case TextColumn:
		return !c.Text(s).Valid
	case NumericColumn:
		return !c.Numeric(s).Valid
	default:
		return false
	}
}

func textCol(name string, f func(*Snapshot) *sql.NullString) Column {
	return Column{Name: name, Kind: TextColumn, text: f}
}

func numCol(name string, f func(*Snapshot) *decimal.NullDecimal) Column {
	return Column{Name: name, Kind: NumericColumn, num: f}
}

func scaledCol(name string, f func(*Snapshot) *decimal.NullDecimal) Column {
	return Column{Name: name, Kind: NumericColumn, Scaled: true, num: f}
}

// Column names used outside the registry
const (
	ColTicker         = "ticker"
	ColDataDate       = "data_date"
	ColPassedProfiles = "passed_profiles"
	ColMarketCap      = "market_cap"
	ColDollarVolume   = "dollar_volume"
	ColTotalScore     = "total_score"
	ColFairValue      = "fair_value"
	ColDiscount       = "discount"
)

// metricColumns are written by the collection pipeline, in table order
var metricColumns = []Column{
	textCol("name", func(s *Snapshot) *sql.NullString { return &s.Name }),
	textCol("sector", func(s *Snapshot) *sql.NullString { return &s.Sector }),
	textCol("industry", func(s *Snapshot) *sql.NullString { return &s.Industry }),

	numCol("price", func(s *Snapshot) *decimal.NullDecimal { return &s.Price }),
	scaledCol(ColMarketCap, func(s *Snapshot) *decimal.NullDecimal { return &s.MarketCap }),
	scaledCol(ColDollarVolume, func(s *Snapshot) *decimal.NullDecimal { return &s.DollarVolume }),

	numCol("pe_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.PE }),
	numCol("peg_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.PEG }),
	numCol("pb_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.PB }),
	numCol("ps_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.PS }),
	numCol("ev_ebitda", func(s *Snapshot) *decimal.NullDecimal { return &s.EVEBITDA }),
	numCol("fcf_yield", func(s *Snapshot) *decimal.NullDecimal { return &s.FCFYield }),
	numCol("div_yield", func(s *Snapshot) *decimal.NullDecimal { return &s.DivYield }),
	numCol("payout_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.PayoutRatio }),

	numCol("roe", func(s *Snapshot) *decimal.NullDecimal { return &s.ROE }),
	numCol("roa", func(s *Snapshot) *decimal.NullDecimal { return &s.ROA }),
	numCol("op_margin_ttm", func(s *Snapshot) *decimal.NullDecimal { return &s.OpMarginTTM }),
	numCol("operating_margins", func(s *Snapshot) *decimal.NullDecimal { return &s.OperatingMargins }),
	numCol("gross_margins", func(s *Snapshot) *decimal.NullDecimal { return &s.GrossMargins }),
	numCol("net_margins", func(s *Snapshot) *decimal.NullDecimal { return &s.NetMargins }),

	numCol("rev_yoy", func(s *Snapshot) *decimal.NullDecimal { return &s.RevYoY }),
	numCol("eps_growth_3y", func(s *Snapshot) *decimal.NullDecimal { return &s.EPSGrowth3Y }),
	numCol("revenue_growth_3y", func(s *Snapshot) *decimal.NullDecimal { return &s.RevenueGrowth3Y }),
	numCol("ebitda_growth_3y", func(s *Snapshot) *decimal.NullDecimal { return &s.EBITDAGrowth3Y }),

	numCol("sma_20", func(s *Snapshot) *decimal.NullDecimal { return &s.SMA20 }),
	numCol("sma_50", func(s *Snapshot) *decimal.NullDecimal { return &s.SMA50 }),
	numCol("sma_200", func(s *Snapshot) *decimal.NullDecimal { return &s.SMA200 }),
	numCol("rsi_14", func(s *Snapshot) *decimal.NullDecimal { return &s.RSI14 }),
	numCol("macd", func(s *Snapshot) *decimal.NullDecimal { return &s.MACD }),
	numCol("macd_signal", func(s *Snapshot) *decimal.NullDecimal { return &s.MACDSignal }),
	numCol("macd_histogram", func(s *Snapshot) *decimal.NullDecimal { return &s.MACDHistogram }),
	numCol("bb_position", func(s *Snapshot) *decimal.NullDecimal { return &s.BBPosition }),
	numCol("atr_14", func(s *Snapshot) *decimal.NullDecimal { return &s.ATR14 }),

	numCol("ret_5", func(s *Snapshot) *decimal.NullDecimal { return &s.Ret5 }),
	numCol("ret_20", func(s *Snapshot) *decimal.NullDecimal { return &s.Ret20 }),
	numCol("ret_63", func(s *Snapshot) *decimal.NullDecimal { return &s.Ret63 }),
	numCol("momentum_12m", func(s *Snapshot) *decimal.NullDecimal { return &s.Momentum12M }),
	numCol("volatility_21d", func(s *Snapshot) *decimal.NullDecimal { return &s.Volatility21D }),
	numCol("high_52w_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.High52WRatio }),
	numCol("low_52w_ratio", func(s *Snapshot) *decimal.NullDecimal { return &s.Low52WRatio }),
	numCol("rvol", func(s *Snapshot) *decimal.NullDecimal { return &s.RVOL }),

	numCol("beta", func(s *Snapshot) *decimal.NullDecimal { return &s.Beta }),
	numCol("short_percent", func(s *Snapshot) *decimal.NullDecimal { return &s.ShortPercent }),
	numCol("insider_ownership", func(s *Snapshot) *decimal.NullDecimal { return &s.InsiderOwnership }),
	numCol("institution_ownership", func(s *Snapshot) *decimal.NullDecimal { return &s.InstitutionOwnership }),
}

// screeningColumns are written by the screening path only
var screeningColumns = []Column{
	numCol(ColFairValue, func(s *Snapshot) *decimal.NullDecimal { return &s.FairValue }),
	numCol(ColDiscount, func(s *Snapshot) *decimal.NullDecimal { return &s.Discount }),
	numCol("growth_score", func(s *Snapshot) *decimal.NullDecimal { return &s.GrowthScore }),
	numCol("quality_score", func(s *Snapshot) *decimal.NullDecimal { return &s.QualityScore }),
	numCol("value_score", func(s *Snapshot) *decimal.NullDecimal { return &s.ValueScore }),
	numCol("momentum_score", func(s *Snapshot) *decimal.NullDecimal { return &s.MomentumScore }),
	numCol(ColTotalScore, func(s *Snapshot) *decimal.NullDecimal { return &s.TotalScore }),
}

var profilesColumn = Column{Name: ColPassedProfiles, Kind: ProfilesColumn}

var columnIndex = func() map[string]Column {
	idx := make(map[string]Column)
	for _, c := range AllColumns() {
		idx[c.Name] = c
	}
	return idx
}()

// AllColumns returns every data column in table order (excluding key and timestamps)
func AllColumns() []Column {
	out := make([]Column, 0, len(metricColumns)+len(screeningColumns)+1)
	out = append(out, metricColumns...)
	out = append(out, screeningColumns...)
	out = append(out, profilesColumn)
	return out
}

// LookupColumn finds a column by canonical name
func LookupColumn(name string) (Column, bool) {
	c, ok := columnIndex[name]
	return c, ok
}

// ColumnSet is the explicit set of columns a write touches.
// Columns outside the set are absent and left untouched by the store;
// columns inside the set with a null value are overwritten with NULL.
type ColumnSet []string

// MetricColumns is the write set of the collection pipeline
func MetricColumns() ColumnSet {
	return namesOf(metricColumns)
}

// ScreeningColumns is the write set of the screening path (passed_profiles is reconciled separately)
func ScreeningColumns() ColumnSet {
	return namesOf(screeningColumns)
}

// FullColumns is every data column including passed_profiles
func FullColumns() ColumnSet {
	return namesOf(AllColumns())
}

func namesOf(cols []Column) ColumnSet {
	out := make(ColumnSet, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Columns resolves the set against the registry.
// Unknown or key columns are a ConfigError.
func (cs ColumnSet) Columns() ([]Column, error) {
	out := make([]Column, 0, len(cs))
	seen := make(map[string]bool, len(cs))
	for _, name := range cs {
		if name == ColTicker || name == ColDataDate {
			return nil, &ConfigError{Field: "columns", Message: fmt.Sprintf("%s is a key column", name)}
		}
		c, ok := LookupColumn(name)
		if !ok {
			return nil, &ConfigError{Field: "columns", Message: fmt.Sprintf("unknown column %q", name)}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, c)
	}
	return out, nil
}

// MarshalJSON renders the snapshot keyed by canonical column names; nulls stay null
func (s Snapshot) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(columnIndex)+4)
	m[ColTicker] = s.Ticker
	m[ColDataDate] = s.DataDate.Format("2006-01-02")
	for _, c := range AllColumns() {
		switch c.Kind {
		case TextColumn:
			if v := c.Text(&s); v.Valid {
				m[c.Name] = v.String
			} else {
				m[c.Name] = nil
			}
		case NumericColumn:
			if v := c.Numeric(&s); v.Valid {
				m[c.Name] = json.Number(v.Decimal.String())
			} else {
				m[c.Name] = nil
			}
		case ProfilesColumn:
			profiles := s.PassedProfiles
			if profiles == nil {
				profiles = ProfileSet{}
			}
			m[c.Name] = profiles
		}
	}
	if !s.CreatedAt.IsZero() {
		m["created_at"] = s.CreatedAt
	}
	if !s.UpdatedAt.IsZero() {
		m["updated_at"] = s.UpdatedAt
	}
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Snapshot{}
	if v, ok := raw[ColTicker]; ok {
		if err := json.Unmarshal(v, &s.Ticker); err != nil {
			return fmt.Errorf("ticker: %w", err)
		}
	}
	if v, ok := raw[ColDataDate]; ok {
		var ds string
		if err := json.Unmarshal(v, &ds); err != nil {
			return fmt.Errorf("data_date: %w", err)
		}
		if ds != "" {
			d, err := time.Parse("2006-01-02", ds)
			if err != nil {
				return fmt.Errorf("data_date: %w", err)
			}
			s.DataDate = d
		}
	}

	for _, c := range AllColumns() {
		v, ok := raw[c.Name]
		if !ok || string(v) == "null" {
			continue
		}
		switch c.Kind {
		case TextColumn:
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			c.SetText(s, sql.NullString{String: str, Valid: true})
		case NumericColumn:
			var d decimal.Decimal
			if err := d.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			c.SetNumeric(s, decimal.NullDecimal{Decimal: d, Valid: true})
		case ProfilesColumn:
			var names []string
			if err := json.Unmarshal(v, &names); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			s.PassedProfiles = NewProfileSet(names...)
		}
	}

	for key, dst := range map[string]*time.Time{"created_at": &s.CreatedAt, "updated_at": &s.UpdatedAt} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}
