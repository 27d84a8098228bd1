package mapper

// SourceTicker is the source field holding the instrument key
const SourceTicker = "Ticker"

// fieldMapping maps one source field to a canonical column
type fieldMapping struct {
	Source    string
	Canonical string
}

// translation is the fixed source → canonical table.
// ⭐ SSOT: 소스 컬럼명 ↔ DB 컬럼명 매핑은 여기서만
// MktCap($M) / DollarVol($M) 는 백만 단위 (contracts.Column.Scaled)
var translation = []fieldMapping{
	{"Name", "name"},
	{"Sector", "sector"},
	{"Industry", "industry"},

	{"Price", "price"},
	{"MktCap($M)", "market_cap"},
	{"DollarVol($M)", "dollar_volume"},

	{"PE", "pe_ratio"},
	{"PEG", "peg_ratio"},
	{"PB", "pb_ratio"},
	{"PS", "ps_ratio"},
	{"EV_EBITDA", "ev_ebitda"},
	{"FCF_Yield", "fcf_yield"},
	{"DivYield", "div_yield"},
	{"PayoutRatio", "payout_ratio"},

	{"ROE", "roe"},
	{"ROA", "roa"},
	{"OpMarginTTM", "op_margin_ttm"},
	{"OperatingMargins", "operating_margins"},
	{"GrossMargins", "gross_margins"},
	{"NetMargins", "net_margins"},

	{"RevYoY", "rev_yoy"},
	{"EPS_Growth_3Y", "eps_growth_3y"},
	{"Revenue_Growth_3Y", "revenue_growth_3y"},
	{"EBITDA_Growth_3Y", "ebitda_growth_3y"},

	{"SMA20", "sma_20"},
	{"SMA50", "sma_50"},
	{"SMA200", "sma_200"},
	{"RSI_14", "rsi_14"},
	{"MACD", "macd"},
	{"MACD_Signal", "macd_signal"},
	{"MACD_Histogram", "macd_histogram"},
	{"BB_Position", "bb_position"},
	{"ATR_14", "atr_14"},

	{"RET5", "ret_5"},
	{"RET20", "ret_20"},
	{"RET63", "ret_63"},
	{"Momentum_12M", "momentum_12m"},
	{"Volatility_21D", "volatility_21d"},
	{"High_52W_Ratio", "high_52w_ratio"},
	{"Low_52W_Ratio", "low_52w_ratio"},
	{"RVOL", "rvol"},

	{"Beta", "beta"},
	{"ShortPercent", "short_percent"},
	{"InsiderOwnership", "insider_ownership"},
	{"InstitutionOwnership", "institution_ownership"},

	// 스크리닝 결과 (screening view 전용, 수집 소스에는 없음)
	{"FairValue", "fair_value"},
	{"Discount", "discount"},
	{"GrowthScore", "growth_score"},
	{"QualityScore", "quality_score"},
	{"ValueScore", "value_score"},
	{"MomentumScore", "momentum_score"},
	{"TotalScore", "total_score"},
}

var (
	bySource    = make(map[string]string, len(translation))
	byCanonical = make(map[string]string, len(translation))
)

func init() {
	for _, m := range translation {
		bySource[m.Source] = m.Canonical
		byCanonical[m.Canonical] = m.Source
	}
}

// SourceName returns the source field name of a canonical column
func SourceName(canonical string) (string, bool) {
	s, ok := byCanonical[canonical]
	return s, ok
}

// CanonicalName returns the canonical column of a source field
func CanonicalName(source string) (string, bool) {
	c, ok := bySource[source]
	return c, ok
}

// SourceHeaders returns the source field names in table order, ticker first
func SourceHeaders() []string {
	out := make([]string, 0, len(translation)+2)
	out = append(out, SourceTicker)
	for _, m := range translation {
		out = append(out, m.Source)
	}
	return append(out, "PassedProfiles")
}
