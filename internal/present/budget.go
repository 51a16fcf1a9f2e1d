package present

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/soheil-star01/anjoman/internal/budget"
	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// BarWidth is the number of cells in the budget bar.
const BarWidth = 24

// Bar renders a progress bar for a percentage, clamped to [0, 100].
func Bar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = math.Max(0, math.Min(100, percent))
	filled := int(math.Round(percent / 100 * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (p *Printer) levelStyle(l budget.Level) lipgloss.Style {
	switch l {
	case budget.LevelExceeded:
		return p.st.danger
	case budget.LevelWarning:
		return p.st.warning
	default:
		return p.st.ok
	}
}

// Budget prints the budget tracker for a snapshot and its evaluated status.
func (p *Printer) Budget(b domain.Budget, st budget.Status) {
	style := p.levelStyle(st.Level())

	fmt.Fprintln(p.w, p.st.label.Render("Budget"))
	if b.Used > 0 {
		fmt.Fprintf(p.w, "  Used:  %s\n", style.Render(fmt.Sprintf("≈ $%.4f", b.Used)))
		fmt.Fprintf(p.w, "  Limit: $%.2f\n", b.TotalBudget)
	} else {
		fmt.Fprintf(p.w, "  %s\n", p.st.dim.Render("Cost tracking in progress..."))
	}
	fmt.Fprintf(p.w, "  %s %s\n", style.Render(Bar(st.DisplayPercent(), BarWidth)),
		p.st.dim.Render(fmt.Sprintf("%.1f%% used", st.PercentUsed)))

	switch {
	case st.IsExceeded:
		fmt.Fprintf(p.w, "  %s\n", p.st.danger.Render("Budget exceeded!"))
	case st.IsWarning:
		fmt.Fprintf(p.w, "  %s\n", p.st.warning.Render(
			fmt.Sprintf("Budget warning: $%.2f / $%.2f used", b.Used, b.TotalBudget)))
	}
}

// Disclaimer prints the note about approximate cost figures.
func (p *Printer) Disclaimer() {
	fmt.Fprintln(p.w, p.st.info.Render("About token costs: token usage is tracked accurately. "+
		"Cost estimates (≈) are approximate and may not reflect the latest pricing; "+
		"actual costs depend on your provider's current rates."))
}
