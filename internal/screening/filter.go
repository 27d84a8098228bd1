package screening

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/mapper"
)

// RuleFilter keeps rows that satisfy every rule of a profile
type RuleFilter struct {
	book *Book
}

// NewRuleFilter creates a filter over a profile book
func NewRuleFilter(book *Book) *RuleFilter {
	return &RuleFilter{book: book}
}

// Filter returns the passing rows in input order. No match is an empty slice, not an error.
func (f *RuleFilter) Filter(ctx context.Context, rows []contracts.Snapshot, profile string) ([]contracts.Snapshot, error) {
	p, err := f.book.Profile(profile)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Snapshot, 0, len(rows))
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := passes(&rows[i], p.Rules)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// passes evaluates rules against the screening view (scaled fields in millions)
func passes(s *contracts.Snapshot, rules []Rule) (bool, error) {
	for _, r := range rules {
		v, err := mapper.ScreeningValue(s, r.Field)
		if err != nil {
			return false, err
		}
		if !v.Valid {
			return false, nil
		}
		if r.Min != nil && v.Decimal.LessThan(decimal.NewFromFloat(*r.Min)) {
			return false, nil
		}
		if r.Max != nil && v.Decimal.GreaterThan(decimal.NewFromFloat(*r.Max)) {
			return false, nil
		}
	}
	return true, nil
}
