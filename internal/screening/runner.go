package screening

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// Runner applies one profile to a dataset
// ⭐ SSOT: 프로파일 단위 스크리닝 순서 (필터 → 적정가 → 점수 → 정렬 → 태그)
type Runner struct {
	book   *Book
	filter contracts.ProfileFilter
	valuer contracts.Valuer
	scorer contracts.Scorer
}

// NewRunner creates a runner from pluggable strategies
func NewRunner(book *Book, filter contracts.ProfileFilter, valuer contracts.Valuer, scorer contracts.Scorer) *Runner {
	return &Runner{
		book:   book,
		filter: filter,
		valuer: valuer,
		scorer: scorer,
	}
}

// NewDefaultRunner wires the rule filter, blend valuer and percentile scorer
func NewDefaultRunner(book *Book) *Runner {
	return NewRunner(book, NewRuleFilter(book), NewBlendValuer(DefaultValuationConfig()), NewPercentileScorer(book))
}

// Book returns the profile book
func (r *Runner) Book() *Book {
	return r.book
}

// RunProfile filters, values, scores and ranks rows for one profile.
// An empty subset is an empty result, not an error. Unknown profiles are a ConfigError.
func (r *Runner) RunProfile(ctx context.Context, rows []contracts.Snapshot, profile string) ([]contracts.ProfileResult, error) {
	if _, err := r.book.Profile(profile); err != nil {
		return nil, err
	}

	// 입력을 복사해서 프로파일 간 간섭 방지
	input := make([]contracts.Snapshot, len(rows))
	for i := range rows {
		input[i] = rows[i].Clone()
	}

	// 1. Filter
	subset, err := r.filter.Filter(ctx, input, profile)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", profile, err)
	}
	if len(subset) == 0 {
		return []contracts.ProfileResult{}, nil
	}

	// 2. Fair value (rows missing it)
	if needsFairValue(subset) {
		subset, err = r.valuer.EstimateFairValue(ctx, subset)
		if err != nil {
			return nil, fmt.Errorf("fair value %s: %w", profile, err)
		}
	}

	// 3. Score
	subset, err = r.scorer.Score(ctx, subset, r.book.CategoryOf(profile))
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", profile, err)
	}

	// 4. Sort
	SortByTotalScore(subset)

	// 5. Tag
	results := make([]contracts.ProfileResult, len(subset))
	for i := range subset {
		subset[i].PassedProfiles = contracts.NewProfileSet(profile)
		results[i] = contracts.ProfileResult{Profile: profile, Snapshot: subset[i]}
	}
	return results, nil
}

func needsFairValue(rows []contracts.Snapshot) bool {
	for i := range rows {
		if !rows[i].FairValue.Valid {
			return true
		}
	}
	return false
}

// SortByTotalScore orders rows by total score desc (absent last), ticker asc on ties
func SortByTotalScore(rows []contracts.Snapshot) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].TotalScore, rows[j].TotalScore
		switch {
		case a.Valid && !b.Valid:
			return true
		case !a.Valid && b.Valid:
			return false
		case a.Valid && b.Valid && !a.Decimal.Equal(b.Decimal):
			return a.Decimal.GreaterThan(b.Decimal)
		}
		return rows[i].Ticker < rows[j].Ticker
	})
}
