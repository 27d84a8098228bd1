package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/ddalkkak/backend/internal/screening"
)

// profilesCmd lists the screening profiles
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "스크리닝 프로파일 목록",
	Long: `로드된 프로파일과 점수 카테고리 가중치를 출력합니다.
SCREENING_PROFILES_FILE 이 없으면 내장 profiles.yaml 을 사용합니다.`,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	book, err := screening.LoadBook(cfg.Screening.ProfilesFile)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	fmt.Println("Profiles:")
	for _, p := range book.Profiles {
		fmt.Printf("\n📋 %s (%s)\n", p.Name, book.CategoryOf(p.Name))
		if p.Description != "" {
			fmt.Printf("   %s\n", p.Description)
		}
		PrintList(ruleLines(p.Rules))
	}

	fmt.Println("\nScore categories:")
	widths := []int{10, 8, 8, 8, 8}
	PrintTableHeader([]string{"Category", "Growth", "Quality", "Value", "Momentum"}, widths)
	for _, name := range book.CategoryNames() {
		w := book.Categories[name]
		PrintTableRow([]string{
			name,
			fmt.Sprintf("%.2f", w.Growth),
			fmt.Sprintf("%.2f", w.Quality),
			fmt.Sprintf("%.2f", w.Value),
			fmt.Sprintf("%.2f", w.Momentum),
		}, widths)
	}
	return nil
}

// ruleLines renders rules as "min ≤ field ≤ max"
func ruleLines(rules []screening.Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		var b strings.Builder
		if r.Min != nil {
			fmt.Fprintf(&b, "%g ≤ ", *r.Min)
		}
		b.WriteString(r.Field)
		if r.Max != nil {
			fmt.Fprintf(&b, " ≤ %g", *r.Max)
		}
		out = append(out, b.String())
	}
	return out
}
