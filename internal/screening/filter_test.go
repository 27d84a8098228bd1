package screening

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

func TestRuleFilter_Profiles(t *testing.T) {
	f := NewRuleFilter(DefaultBook())
	rows := []contracts.Snapshot{growthOnly("X"), bothProfiles("Y"), valueOnly("Z")}

	growth, err := f.Filter(context.Background(), rows, "growth_quality")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, tickersOf(growth))

	value, err := f.Filter(context.Background(), rows, "value_basic")
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "Z"}, tickersOf(value))
}

func TestRuleFilter_ScaledFieldsCompareInMillions(t *testing.T) {
	f := NewRuleFilter(DefaultBook())

	// market_cap 경계값: 1000 ($M) 이상 통과
	atBound := bothProfiles("EDGE")
	atBound.MarketCap = num("1000000000")
	below := bothProfiles("LOW")
	below.MarketCap = num("999999999")

	out, err := f.Filter(context.Background(), []contracts.Snapshot{atBound, below}, "growth_quality")
	require.NoError(t, err)
	assert.Equal(t, []string{"EDGE"}, tickersOf(out))
}

func TestRuleFilter_NullFailsRule(t *testing.T) {
	f := NewRuleFilter(DefaultBook())

	row := bothProfiles("Y")
	row.ROE = decimal.NullDecimal{}

	out, err := f.Filter(context.Background(), []contracts.Snapshot{row}, "growth_quality")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}

func TestRuleFilter_UnknownProfile(t *testing.T) {
	f := NewRuleFilter(DefaultBook())

	_, err := f.Filter(context.Background(), nil, "moonshot")
	assert.True(t, contracts.IsConfigError(err))
}
