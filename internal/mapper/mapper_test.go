package mapper

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

func TestToCanonical(t *testing.T) {
	src := contracts.SourceRecord{
		"Ticker":        "AAPL",
		"Name":          "Apple Inc.",
		"Sector":        "Technology",
		"Price":         187.25,
		"MktCap($M)":    2900000.5,
		"DollarVol($M)": json.Number("12500.125"),
		"PE":            math.NaN(),
		"PB":            nil,
		"ROE":           "0.145",
		"Beta":          math.Inf(1),
		"RSI_14":        int64(55),
		"Unmapped":      "ignored",
	}

	snap, ok := ToCanonical(src)
	require.True(t, ok)

	assert.Equal(t, "AAPL", snap.Ticker)
	assert.Equal(t, "Apple Inc.", snap.Name.String)
	assert.False(t, snap.Industry.Valid, "missing text field stays absent")

	assert.True(t, snap.Price.Decimal.Equal(decimal.RequireFromString("187.25")))
	// 백만 단위 → 절대 금액
	assert.True(t, snap.MarketCap.Decimal.Equal(decimal.RequireFromString("2900000500000")), snap.MarketCap.Decimal.String())
	assert.True(t, snap.DollarVolume.Decimal.Equal(decimal.RequireFromString("12500125000")))

	assert.False(t, snap.PE.Valid, "NaN must become absent, not zero")
	assert.False(t, snap.PB.Valid)
	assert.False(t, snap.Beta.Valid, "Inf must become absent")
	assert.True(t, snap.ROE.Decimal.Equal(decimal.RequireFromString("0.145")))
	assert.True(t, snap.RSI14.Decimal.Equal(decimal.NewFromInt(55)))
}

func TestToCanonical_DropsMissingTicker(t *testing.T) {
	tests := []struct {
		name string
		src  contracts.SourceRecord
	}{
		{"no ticker field", contracts.SourceRecord{"Price": 10.0}},
		{"nil ticker", contracts.SourceRecord{"Ticker": nil, "Price": 10.0}},
		{"blank ticker", contracts.SourceRecord{"Ticker": "  ", "Price": 10.0}},
		{"nan ticker", contracts.SourceRecord{"Ticker": math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ToCanonical(tt.src)
			assert.False(t, ok)
		})
	}
}

func TestMapAll(t *testing.T) {
	records := []contracts.SourceRecord{
		{"Ticker": "AAA", "Price": 1.0},
		{"Price": 2.0},
		{"Ticker": "BBB"},
	}

	snaps, dropped := MapAll(records)
	assert.Equal(t, 1, dropped)
	require.Len(t, snaps, 2)
	assert.Equal(t, "AAA", snaps[0].Ticker)
	assert.Equal(t, "BBB", snaps[1].Ticker)
}

func TestScaledRoundTrip(t *testing.T) {
	values := []string{"0.000001", "1", "1234.5678", "2900000.5", "0"}

	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			in := decimal.RequireFromString(v)
			snap, ok := ToCanonical(contracts.SourceRecord{"Ticker": "X", "MktCap($M)": in})
			require.True(t, ok)

			out := ToScreening(snap)
			got, ok := out["MktCap($M)"].(decimal.Decimal)
			require.True(t, ok)
			assert.True(t, got.Equal(in), "round trip %s → %s", v, got)
		})
	}
}

func TestToScreening(t *testing.T) {
	snap := contracts.Snapshot{
		Ticker:         "AAA",
		PassedProfiles: contracts.NewProfileSet("value_basic", "growth_quality"),
	}
	snap.DollarVolume = decimal.NullDecimal{Decimal: decimal.NewFromInt(25_000_000), Valid: true}

	rec := ToScreening(snap)
	assert.Equal(t, "AAA", rec[SourceTicker])
	assert.True(t, rec["DollarVol($M)"].(decimal.Decimal).Equal(decimal.NewFromInt(25)))
	_, hasPE := rec["PE"]
	assert.False(t, hasPE, "absent values are omitted")
	assert.Equal(t, []string{"growth_quality", "value_basic"}, rec["PassedProfiles"])

	back, ok := ToCanonical(rec)
	require.True(t, ok)
	assert.True(t, back.DollarVolume.Decimal.Equal(snap.DollarVolume.Decimal))
	assert.Equal(t, snap.PassedProfiles, back.PassedProfiles)
}

func TestScreeningValue(t *testing.T) {
	snap := contracts.Snapshot{Ticker: "AAA"}
	snap.MarketCap = decimal.NullDecimal{Decimal: decimal.NewFromInt(3_000_000_000), Valid: true}

	v, err := ScreeningValue(&snap, "market_cap")
	require.NoError(t, err)
	assert.True(t, v.Decimal.Equal(decimal.NewFromInt(3000)))

	v, err = ScreeningValue(&snap, "pe_ratio")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	_, err = ScreeningValue(&snap, "sector")
	assert.True(t, contracts.IsConfigError(err))
}

func TestTranslationTable(t *testing.T) {
	// 모든 매핑 대상은 레지스트리에 존재해야 함
	for _, m := range translation {
		_, ok := contracts.LookupColumn(m.Canonical)
		assert.True(t, ok, m.Canonical)
	}

	name, ok := SourceName("market_cap")
	require.True(t, ok)
	assert.Equal(t, "MktCap($M)", name)
	canonical, ok := CanonicalName(name)
	require.True(t, ok)
	assert.Equal(t, "market_cap", canonical)

	headers := SourceHeaders()
	assert.Equal(t, SourceTicker, headers[0])
	assert.Equal(t, "PassedProfiles", headers[len(headers)-1])
}
