package commands

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// JobMetadata holds job execution metadata
type JobMetadata struct {
	JobType   string
	Tag       string
	Timestamp string
	DataDate  string // Optional
	Profiles  string // Optional
}

// PrintJobHeader prints a formatted job header
func PrintJobHeader(meta JobMetadata) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", meta.JobType)
	fmt.Println("───────────────────────────────────────────────────────────")

	// Optional date
	if meta.DataDate != "" {
		fmt.Printf("  Data date : %s\n", meta.DataDate)
	}

	// Optional profiles
	if meta.Profiles != "" {
		fmt.Printf("  Profiles  : %s\n", meta.Profiles)
	}

	fmt.Println("───────────────────────────────────────────────────────────")
	fmt.Printf("[%s] Manual run triggered at %s\n", meta.Tag, meta.Timestamp)
}

// PrintProgress prints a progress step with counter
// Example: [stage1] 500 instruments fetched [500/503]
func PrintProgress(tag string, message string, current int, total int) {
	fmt.Printf("[%s] %s [%d/%d]\n", tag, message, current, total)
}

// PrintJobCompletion prints job completion message
func PrintJobCompletion(name string, duration float64) {
	fmt.Println()
	fmt.Printf("✅ %s completed in %.2fs\n", name, duration)
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	for i, col := range columns {
		fmt.Printf("%-*s", widths[i], col)
		if i < len(columns)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()

	// Separator line
	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	for i := 0; i < totalWidth; i++ {
		fmt.Print("─")
	}
	fmt.Println()
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// FormatDecimal renders a nullable number with fixed places ("-" when absent)
func FormatDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}

// FormatMillions renders an absolute amount in millions ("-" when absent)
func FormatMillions(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.Shift(-6).StringFixed(1) + "M"
}

// printObserver prints stage progress to stdout every n tasks
type printObserver struct {
	mu    sync.Mutex
	every int
}

func newPrintObserver(every int) *printObserver {
	if every <= 0 {
		every = 100
	}
	return &printObserver{every: every}
}

func (o *printObserver) StageStarted(stage string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Printf("[%s] started with %d tasks\n", stage, total)
}

func (o *printObserver) TaskDone(stage string, done, total int, err error) {
	if done%o.every != 0 && done != total {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	PrintProgress(stage, "tasks finished", done, total)
}

func (o *printObserver) StageFinished(stage string, succeeded, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Printf("[%s] done: %d succeeded, %d failed\n", stage, succeeded, failed)
}

func (o *printObserver) Warn(msg string, fields map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Printf("⚠️  %s %v\n", msg, fields)
}
