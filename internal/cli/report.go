package cli

import (
	"fmt"
	"strings"

	"StockPulse/internal/usecase"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1).
		MarginBottom(1)

	tableStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	weakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

var reportColumns = []string{"SYMBOL", "BARS", "STEPS", "CALLS", "HOLDS", "HIT RATE", "IN RANGE", "AVG CONF", "AVG WIDTH"}

// RenderEvaluation formats replay reports as a bordered table followed by
// any per-symbol failures.
func RenderEvaluation(reports []usecase.EvaluationReport, failures []string) string {
	rows := [][]string{reportColumns}
	for _, r := range reports {
		rows = append(rows, []string{
		r.Symbol,
		fmt.Sprint(r.Bars),
		fmt.Sprint(r.Steps),
		fmt.Sprint(r.Calls),
		fmt.Sprint(r.Holds),
		pct(r.HitRate()),
		pct(r.Containment()),
		fmt.Sprintf("%.1f", r.AvgConfidence),
		fmt.Sprintf("%.2f%%", r.AvgWidthPct),
		})
	}

	widths := make([]int, len(reportColumns))
	for _, row := range rows {
		for i, cell := range row {
		if len(cell) > widths[i] {
			widths[i] = len(cell)
		}
		}
	}

	var b strings.Builder
	for n, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
		padded := fmt.Sprintf("%-*s", widths[i], cell)
		switch {
		case n == 0:
			padded = headerStyle.Render(padded)
		case i == 5:
			padded = rateStyle(reports[n-1].HitRate()).Render(padded)
		}
		cells[i] = padded
		}
		b.WriteString(strings.Join(cells, "  "))
		if n < len(rows)-1 {
		b.WriteByte('\n')
		}
	}

	out := titleStyle.Render("Replay evaluation") + "\n" + tableStyle.Render(b.String())
	for _, f := range failures {
		out += "\n" + errorStyle.Render("✗ "+f)
	}
	return out
}

func rateStyle(rate float64) lipgloss.Style {
	if rate >= 0.5 {
		return goodStyle
	}
	return weakStyle
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v*100) }
