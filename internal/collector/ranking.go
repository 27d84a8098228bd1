package collector

import (
	"sort"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// DefaultTopK is the stage-2 subset size
const DefaultTopK = 12000

// Rank orders stage-1 records by dollar volume (desc, absent last, ticker asc
// on ties) and returns the top k. k <= 0 or k > len(records) keeps all.
func Rank(records []*contracts.LightRecord, k int) []*contracts.LightRecord {
	ranked := make([]*contracts.LightRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			ranked = append(ranked, r)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].DollarVolume, ranked[j].DollarVolume
		switch {
		case a.Valid && !b.Valid:
			return true
		case !a.Valid && b.Valid:
			return false
		case a.Valid && b.Valid && !a.Decimal.Equal(b.Decimal):
			return a.Decimal.GreaterThan(b.Decimal)
		}
		return ranked[i].Ref.Ticker < ranked[j].Ref.Ticker
	})

	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
