package screening

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

func TestDiscount(t *testing.T) {
	tests := []struct {
		name  string
		fair  decimal.NullDecimal
		price decimal.NullDecimal
		want  string
	}{
		{"undervalued", num("200"), num("150"), "0.25"},
		{"overvalued", num("100"), num("125"), "-0.25"},
		{"no fair value", decimal.NullDecimal{}, num("10"), ""},
		{"no price", num("10"), decimal.NullDecimal{}, ""},
		{"non-positive fair value", num("0"), num("10"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(tt.fair, tt.price)
			if tt.want == "" {
				assert.False(t, got.Valid)
				return
			}
			require.True(t, got.Valid)
			assert.True(t, got.Decimal.Equal(decimal.RequireFromString(tt.want)), got.Decimal.String())
		})
	}
}

func TestBlendValuer_Graham(t *testing.T) {
	v := NewBlendValuer(DefaultValuationConfig())

	// EPS = 100 / 10 = 10, g = 10% → 10 × (8.5 + 20) = 285
	row := contracts.Snapshot{
		Ticker:      "AAA",
		Price:       num("100"),
		PE:          num("10"),
		EPSGrowth3Y: num("0.10"),
	}

	out, err := v.EstimateFairValue(context.Background(), []contracts.Snapshot{row})
	require.NoError(t, err)
	require.Len(t, out, 1)

	require.True(t, out[0].FairValue.Valid)
	assert.True(t, out[0].FairValue.Decimal.Equal(decimal.NewFromInt(285)), out[0].FairValue.Decimal.String())
	require.True(t, out[0].Discount.Valid)
	assert.Equal(t, "0.649123", out[0].Discount.Decimal.String())

	// 입력은 변경되지 않음
	assert.False(t, row.FairValue.Valid)
}

func TestBlendValuer_GrowthIsCapped(t *testing.T) {
	v := NewBlendValuer(DefaultValuationConfig())

	// g = 80% → 상한 25% → 1 × (8.5 + 50) = 58.5
	row := contracts.Snapshot{Ticker: "FAST", Price: num("10"), PE: num("10"), EPSGrowth3Y: num("0.80")}

	out, err := v.EstimateFairValue(context.Background(), []contracts.Snapshot{row})
	require.NoError(t, err)
	assert.True(t, out[0].FairValue.Decimal.Equal(decimal.RequireFromString("58.5")), out[0].FairValue.Decimal.String())
}

func TestBlendValuer_SectorMedian(t *testing.T) {
	v := NewBlendValuer(DefaultValuationConfig())

	mk := func(ticker, pe string) contracts.Snapshot {
		return contracts.Snapshot{Ticker: ticker, Sector: text("Energy"), Price: num("100"), PE: num(pe)}
	}
	rows := []contracts.Snapshot{mk("A", "10"), mk("B", "20"), mk("C", "30")}

	out, err := v.EstimateFairValue(context.Background(), rows)
	require.NoError(t, err)

	// A: EPS 10, Graham 85, 섹터 PER 중앙값 20 × 10 = 200 → 평균 142.5
	assert.True(t, out[0].FairValue.Decimal.Equal(decimal.RequireFromString("142.5")), out[0].FairValue.Decimal.String())
}

func TestBlendValuer_KeepsExistingFairValue(t *testing.T) {
	v := NewBlendValuer(DefaultValuationConfig())

	rows := []contracts.Snapshot{
		{Ticker: "KEEP", Price: num("80"), PE: num("10"), FairValue: num("100")},
		{Ticker: "NONE", Price: num("80")},
	}

	out, err := v.EstimateFairValue(context.Background(), rows)
	require.NoError(t, err)

	assert.True(t, out[0].FairValue.Decimal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "0.2", out[0].Discount.Decimal.String())

	assert.False(t, out[1].FairValue.Valid)
	assert.False(t, out[1].Discount.Valid)
}
