package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/wonny/equindex/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// Every command prints through these helpers
// ═══════════════════════════════════════════════════════════

// Period represents a date range
type Period struct {
	StartDate string
	EndDate   string
}

// PrintRunHeader prints a formatted header for a command run
func PrintRunHeader(title string, period *Period) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
	if period != nil {
		fmt.Printf("  Period    : %s ~ %s\n", period.StartDate, period.EndDate)
	}
	fmt.Printf("  Started   : %s\n", time.Now().Format("2006-01-02 15:04:05"))
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
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

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

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

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintRunSummary prints the tally of a generation run and the errors of failed groupings
func PrintRunSummary(summary *contracts.RunSummary) {
	fmt.Println()
	PrintKeyValue("Run ID", summary.RunID, 10)
	PrintKeyValue("Status", string(summary.Status), 10)
	PrintKeyValue("Groupings", strconv.Itoa(summary.Tally.Total()), 10)
	PrintKeyValue("Success", strconv.Itoa(summary.Tally.Success), 10)
	PrintKeyValue("Skipped", strconv.Itoa(summary.Tally.Skipped), 10)
	PrintKeyValue("Failed", strconv.Itoa(summary.Tally.Failed), 10)
	if summary.FinishedAt != nil {
		PrintKeyValue("Duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String(), 10)
	}

	if skips := skipCounts(summary.Outcomes); len(skips) > 0 {
		fmt.Println()
		fmt.Println("Skip reasons:")
		for _, line := range skips {
			fmt.Printf("   • %s\n", line)
		}
	}

	failed := summary.FailedErrors()
	if len(failed) == 0 {
		return
	}

	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Println("Failed groupings:")
	for _, name := range names {
		fmt.Printf("   • %s: %s\n", name, failed[name])
	}
}

// skipCounts returns "reason: n" lines sorted by reason
func skipCounts(outcomes []contracts.GroupingOutcome) []string {
	counts := make(map[contracts.SkipReason]int)
	for _, o := range outcomes {
		if o.Status == contracts.OutcomeSkipped {
			counts[o.SkipReason]++
		}
	}

	lines := make([]string, 0, len(counts))
	for reason, n := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d", reason, n))
	}
	sort.Strings(lines)
	return lines
}

// parseDay parses a YYYY-MM-DD flag value. Empty means "not set".
func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	day, err := contracts.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return day, nil
}

// formatDay renders a day or "-" for the zero time
func formatDay(day time.Time) string {
	if day.IsZero() {
		return "-"
	}
	return day.Format(contracts.DateLayout)
}
