package screening

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

func num(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// growthOnly passes growth_quality but not value_basic (too expensive)
func growthOnly(ticker string) contracts.Snapshot {
	return contracts.Snapshot{
		Ticker:       ticker,
		Sector:       text("Technology"),
		Price:        num("120"),
		MarketCap:    num("2000000000"),
		DollarVolume: num("10000000"),
		RevYoY:       num("0.30"),
		ROE:          num("0.20"),
		OpMarginTTM:  num("0.20"),
		PE:           num("40"),
		PB:           num("8"),
	}
}

// bothProfiles passes growth_quality and value_basic
func bothProfiles(ticker string) contracts.Snapshot {
	return contracts.Snapshot{
		Ticker:       ticker,
		Sector:       text("Technology"),
		Price:        num("50"),
		MarketCap:    num("2000000000"),
		DollarVolume: num("10000000"),
		RevYoY:       num("0.20"),
		ROE:          num("0.15"),
		OpMarginTTM:  num("0.12"),
		PE:           num("12"),
		PB:           num("1.5"),
	}
}

// valueOnly passes value_basic but not growth_quality (slow, small)
func valueOnly(ticker string) contracts.Snapshot {
	return contracts.Snapshot{
		Ticker:       ticker,
		Sector:       text("Utilities"),
		Price:        num("20"),
		MarketCap:    num("500000000"),
		DollarVolume: num("2000000"),
		RevYoY:       num("0.01"),
		ROE:          num("0.05"),
		OpMarginTTM:  num("0.03"),
		PE:           num("9"),
		PB:           num("1.0"),
	}
}

func tickersOf(rows []contracts.Snapshot) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Ticker
	}
	return out
}
