// Package mapper translates source records to canonical snapshots and back.
package mapper

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// scaleExp is the decimal exponent between source units (millions) and canonical units
const scaleExp = 6

// ToCanonical converts a source record to a canonical snapshot.
// ok is false when the record has no ticker; such records are dropped.
//
// null / NaN / ±Inf become absent values, never zero. Unmapped fields are ignored.
func ToCanonical(src contracts.SourceRecord) (contracts.Snapshot, bool) {
	ticker := tickerOf(src)
	if ticker == "" {
		return contracts.Snapshot{}, false
	}

	snap := contracts.Snapshot{Ticker: ticker}
	for field, raw := range src {
		canonical, ok := CanonicalName(field)
		if !ok {
			continue
		}
		col, ok := contracts.LookupColumn(canonical)
		if !ok {
			continue
		}

		switch col.Kind {
		case contracts.TextColumn:
			col.SetText(&snap, toText(raw))
		case contracts.NumericColumn:
			v := toDecimal(raw)
			if v.Valid && col.Scaled {
				v.Decimal = v.Decimal.Shift(scaleExp)
			}
			col.SetNumeric(&snap, v)
		}
	}

	if profiles, ok := src["PassedProfiles"]; ok {
		snap.PassedProfiles = toProfiles(profiles)
	}

	return snap, true
}

// MapAll converts a batch, returning the mapped snapshots and how many records were dropped
func MapAll(records []contracts.SourceRecord) ([]contracts.Snapshot, int) {
	out := make([]contracts.Snapshot, 0, len(records))
	dropped := 0
	for _, r := range records {
		snap, ok := ToCanonical(r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, snap)
	}
	return out, dropped
}

// ToScreening renders a snapshot in source field names, scaled fields back in millions.
// Absent values are omitted from the record.
func ToScreening(s contracts.Snapshot) contracts.SourceRecord {
	rec := contracts.SourceRecord{SourceTicker: s.Ticker}
	for _, col := range contracts.AllColumns() {
		field, ok := SourceName(col.Name)
		if !ok || col.IsNull(&s) {
			continue
		}
		switch col.Kind {
		case contracts.TextColumn:
			rec[field] = col.Text(&s).String
		case contracts.NumericColumn:
			d := col.Numeric(&s).Decimal
			if col.Scaled {
				d = d.Shift(-scaleExp)
			}
			rec[field] = d
		}
	}
	if len(s.PassedProfiles) > 0 {
		rec["PassedProfiles"] = []string(s.PassedProfiles.Clone())
	}
	return rec
}

// ScreeningValue returns a canonical column of s in screening units (scaled fields in millions)
func ScreeningValue(s *contracts.Snapshot, column string) (decimal.NullDecimal, error) {
	col, ok := contracts.LookupColumn(column)
	if !ok || col.Kind != contracts.NumericColumn {
		return decimal.NullDecimal{}, &contracts.ConfigError{Field: "field", Message: fmt.Sprintf("unknown numeric column %q", column)}
	}
	v := col.Numeric(s)
	if v.Valid && col.Scaled {
		v.Decimal = v.Decimal.Shift(-scaleExp)
	}
	return v, nil
}

func tickerOf(src contracts.SourceRecord) string {
	raw, ok := src[SourceTicker]
	if !ok {
		return ""
	}
	v := toText(raw)
	if !v.Valid {
		return ""
	}
	return strings.TrimSpace(v.String)
}

func isNullString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "null", "n/a", "-":
		return true
	}
	return false
}

// toDecimal normalizes any numeric-looking value; everything else is absent
func toDecimal(raw any) decimal.NullDecimal {
	switch v := raw.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return decimal.NullDecimal{Decimal: v, Valid: true}
	case decimal.NullDecimal:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat32(v), Valid: true}
	case int:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(v)), Valid: true}
	case int32:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt32(v), Valid: true}
	case int64:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
	case *float64:
		if v == nil {
			return decimal.NullDecimal{}
		}
		return toDecimal(*v)
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(v)
	default:
		return decimal.NullDecimal{}
	}
}

func parseDecimal(s string) decimal.NullDecimal {
	if isNullString(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// toText normalizes any non-null value to text
func toText(raw any) sql.NullString {
	switch v := raw.(type) {
	case nil:
		return sql.NullString{}
	case string:
		if isNullString(v) {
			return sql.NullString{}
		}
		return sql.NullString{String: v, Valid: true}
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sql.NullString{}
		}
		return sql.NullString{String: decimal.NewFromFloat(v).String(), Valid: true}
	case decimal.Decimal:
		return sql.NullString{String: v.String(), Valid: true}
	case fmt.Stringer:
		return sql.NullString{String: v.String(), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
}

func toProfiles(raw any) contracts.ProfileSet {
	switch v := raw.(type) {
	case []string:
		return contracts.NewProfileSet(v...)
	case contracts.ProfileSet:
		return contracts.NewProfileSet(v...)
	case string:
		if isNullString(v) {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return contracts.NewProfileSet(parts...)
	default:
		return nil
	}
}
