package screening

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// Divergence records an instrument whose total score differs across profiles.
// The merged row keeps the first profile's values; this is for review only.
type Divergence struct {
	Ticker      string
	KeptProfile string
	Scores      map[string]decimal.Decimal
}

// MergeResult is the merged screening output
type MergeResult struct {
	Order     []string             // 실제 병합 순서
	Rows      []contracts.Snapshot // 종목당 1행, total_score desc
	Divergent []Divergence
}

// Merge folds per-profile results into one row per instrument.
// ⭐ SSOT: 다중 프로파일 병합 규칙은 여기서만
//
// Canonical fields come from the first profile in order that produced the
// instrument; passed_profiles is the exact union. order fixes precedence;
// profiles missing from order follow in lexicographic order.
func Merge(order []string, results map[string][]contracts.ProfileResult) MergeResult {
	seq := mergeOrder(order, results)

	rows := make(map[string]*contracts.Snapshot)
	kept := make(map[string]string)
	scores := make(map[string]map[string]decimal.Decimal)

	for _, profile := range seq {
		for _, r := range results[profile] {
			ticker := r.Snapshot.Ticker
			if r.Snapshot.TotalScore.Valid {
				if scores[ticker] == nil {
					scores[ticker] = make(map[string]decimal.Decimal)
				}
				scores[ticker][profile] = r.Snapshot.TotalScore.Decimal
			}

			existing, ok := rows[ticker]
			if !ok {
				row := r.Snapshot.Clone()
				row.PassedProfiles = contracts.NewProfileSet(profile)
				rows[ticker] = &row
				kept[ticker] = profile
				continue
			}
			existing.PassedProfiles = existing.PassedProfiles.Union(contracts.NewProfileSet(profile))
		}
	}

	out := MergeResult{
		Order: seq,
		Rows:  make([]contracts.Snapshot, 0, len(rows)),
	}
	for _, row := range rows {
		out.Rows = append(out.Rows, *row)
	}
	SortByTotalScore(out.Rows)

	for _, row := range out.Rows {
		if diverges(scores[row.Ticker]) {
			out.Divergent = append(out.Divergent, Divergence{
				Ticker:      row.Ticker,
				KeptProfile: kept[row.Ticker],
				Scores:      scores[row.Ticker],
			})
		}
	}
	return out
}

func mergeOrder(order []string, results map[string][]contracts.ProfileResult) []string {
	seq := make([]string, 0, len(results))
	seen := make(map[string]bool, len(order))
	for _, p := range order {
		if seen[p] {
			continue
		}
		seen[p] = true
		seq = append(seq, p)
	}

	var rest []string
	for p := range results {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(seq, rest...)
}

func diverges(byProfile map[string]decimal.Decimal) bool {
	var first *decimal.Decimal
	for _, v := range byProfile {
		v := v
		if first == nil {
			first = &v
			continue
		}
		if !v.Equal(*first) {
			return true
		}
	}
	return false
}
