package screening

import (
	"bytes"
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Score categories
const (
	CategoryBalanced = "balanced"
	CategoryValue    = "value"
	CategoryGrowth   = "growth"
	CategoryTrading  = "trading"
)

// Rule bounds one numeric field (inclusive). A null field fails the rule.
type Rule struct {
	Field string   `yaml:"field"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
}

// Profile is a named screening strategy
type Profile struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Rules       []Rule `yaml:"rules"`
}

// Weights are the sub-score weights of a score category (sum = 1)
type Weights struct {
	Growth   float64 `yaml:"growth"`
	Quality  float64 `yaml:"quality"`
	Value    float64 `yaml:"value"`
	Momentum float64 `yaml:"momentum"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Growth + w.Quality + w.Value + w.Momentum
}

// Book is the loaded set of profiles and score categories
// ⭐ SSOT: 프로파일 정의는 profiles.yaml (또는 SCREENING_PROFILES_FILE) 에서만
type Book struct {
	DefaultCategory string             `yaml:"default_category"`
	Categories      map[string]Weights `yaml:"categories"`
	Profiles        []Profile          `yaml:"profiles"`
}

// DefaultBook returns the embedded profile definitions
func DefaultBook() *Book {
	book, err := ParseBook(defaultProfilesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded profiles.yaml is invalid: %v", err))
	}
	return book
}

// LoadBook reads profiles from path; an empty path returns the embedded defaults
func LoadBook(path string) (*Book, error) {
	if path == "" {
		return DefaultBook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	return ParseBook(data)
}

// ParseBook decodes and validates profile YAML
// KnownFields(true): 오타/미사용 필드는 즉시 실패
func ParseBook(data []byte) (*Book, error) {
	var book Book
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&book); err != nil {
		return nil, &contracts.ConfigError{Field: "profiles", Message: err.Error()}
	}
	if book.DefaultCategory == "" {
		book.DefaultCategory = CategoryBalanced
	}
	if err := book.Validate(); err != nil {
		return nil, err
	}
	return &book, nil
}

// Validate checks the book is internally consistent
func (b *Book) Validate() error {
	if len(b.Profiles) == 0 {
		return &contracts.ConfigError{Field: "profiles", Message: "at least one profile is required"}
	}
	if _, ok := b.Categories[b.DefaultCategory]; !ok {
		return &contracts.ConfigError{Field: "default_category", Message: fmt.Sprintf("unknown category %q", b.DefaultCategory)}
	}
	for name, w := range b.Categories {
		if w.Growth < 0 || w.Quality < 0 || w.Value < 0 || w.Momentum < 0 {
			return &contracts.ConfigError{Field: "categories." + name, Message: "weights must be >= 0"}
		}
		if math.Abs(w.Sum()-1) > 1e-6 {
			return &contracts.ConfigError{Field: "categories." + name, Message: fmt.Sprintf("weights must sum to 1, got %.4f", w.Sum())}
		}
	}

	seen := make(map[string]bool, len(b.Profiles))
	for i, p := range b.Profiles {
		field := fmt.Sprintf("profiles[%d]", i)
		if p.Name == "" {
			return &contracts.ConfigError{Field: field + ".name", Message: "required"}
		}
		if seen[p.Name] {
			return &contracts.ConfigError{Field: field + ".name", Message: fmt.Sprintf("duplicate profile %q", p.Name)}
		}
		seen[p.Name] = true

		if p.Category != "" {
			if _, ok := b.Categories[p.Category]; !ok {
				return &contracts.ConfigError{Field: field + ".category", Message: fmt.Sprintf("unknown category %q", p.Category)}
			}
		}
		for j, r := range p.Rules {
			col, ok := contracts.LookupColumn(r.Field)
			if !ok || col.Kind != contracts.NumericColumn {
				return &contracts.ConfigError{Field: fmt.Sprintf("%s.rules[%d].field", field, j), Message: fmt.Sprintf("unknown numeric field %q", r.Field)}
			}
			if r.Min == nil && r.Max == nil {
				return &contracts.ConfigError{Field: fmt.Sprintf("%s.rules[%d]", field, j), Message: "min or max is required"}
			}
			if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
				return &contracts.ConfigError{Field: fmt.Sprintf("%s.rules[%d]", field, j), Message: "min must be <= max"}
			}
		}
	}
	return nil
}

// Names returns profile names in declared order
func (b *Book) Names() []string {
	out := make([]string, len(b.Profiles))
	for i, p := range b.Profiles {
		out[i] = p.Name
	}
	return out
}

// Profile finds a profile by name; unknown names are a ConfigError
func (b *Book) Profile(name string) (Profile, error) {
	for _, p := range b.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, &contracts.ConfigError{Field: "profile", Message: fmt.Sprintf("unknown profile %q", name)}
}

// CategoryOf returns the score category of a profile (default when unset)
func (b *Book) CategoryOf(name string) string {
	p, err := b.Profile(name)
	if err != nil || p.Category == "" {
		return b.DefaultCategory
	}
	return p.Category
}

// WeightsOf returns a category's weights, falling back to the default category
func (b *Book) WeightsOf(category string) Weights {
	if w, ok := b.Categories[category]; ok {
		return w
	}
	return b.Categories[b.DefaultCategory]
}

// AllProfiles selects every profile in the book
const AllProfiles = "all"

// Resolve expands "all" (or empty) to every profile in declared order and
// validates explicit names. Duplicates are removed, order kept.
func (b *Book) Resolve(selection []string) ([]string, error) {
	if len(selection) == 0 || (len(selection) == 1 && selection[0] == AllProfiles) {
		return b.Names(), nil
	}
	out := make([]string, 0, len(selection))
	seen := make(map[string]bool, len(selection))
	for _, name := range selection {
		if _, err := b.Profile(name); err != nil {
			return nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// CategoryNames returns category names sorted
func (b *Book) CategoryNames() []string {
	out := make([]string, 0, len(b.Categories))
	for name := range b.Categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
