package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"github.com/soheil-star01/anjoman/internal/budget"
	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/review"
	"github.com/soheil-star01/anjoman/internal/tokens"
)

const (
	timeLayout    = "2006-01-02 15:04"
	issuePreview  = 48
	failedMarker  = "[failed]"
	moderatorName = "Dana"
)

// Header prints a section title.
func (p *Printer) Header(title string) {
	fmt.Fprintf(p.w, "\n%s\n", p.st.header.Render(title))
}

// Error prints err the way the user should see it.
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.st.danger.Render("Error:"), domain.UserMessage(err))
}

// Info prints a dim informational line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, p.st.dim.Render(fmt.Sprintf(format, args...)))
}

// Proposal prints the roster under review with catalog details for each model.
func (p *Printer) Proposal(rc *review.Controller) {
	p.Header("Proposed council")
	if r := strings.TrimSpace(rc.Rationale()); r != "" {
		fmt.Fprintf(p.w, "%s\n\n", r)
	}
	for i, a := range rc.Agents() {
		fmt.Fprintf(p.w, "%d. %s %s\n", i+1, p.st.agent.Render(a.ID), a.Role)
		if a.Style != "" {
			fmt.Fprintf(p.w, "   %s %s\n", p.st.label.Render("Style:"), a.Style)
		}
		if m, ok := rc.LookupModel(a.Model); ok {
			fmt.Fprintf(p.w, "   %s %s (%s)\n", p.st.label.Render("Model:"), m.Label(), m.Provider)
			if m.Description != "" {
				fmt.Fprintf(p.w, "   %s\n", p.st.dim.Render(m.Description))
			}
		} else {
			fmt.Fprintf(p.w, "   %s %s\n", p.st.label.Render("Model:"), a.Model)
		}
	}
	if rc.Edited() {
		fmt.Fprintln(p.w, p.st.dim.Render("(edited)"))
	}
}

// Models prints the catalog grouped by provider.
func (p *Printer) Models(groups []review.ProviderGroup) {
	for _, g := range groups {
		fmt.Fprintln(p.w, p.st.label.Render(g.Provider))
		for _, m := range g.Models {
			line := fmt.Sprintf("  %-32s %s", m.ModelID, m.Label())
			if m.Tier != "" {
				line += " " + p.st.dim.Render("["+m.Tier+"]")
			}
			if m.InputPer1M > 0 || m.OutputPer1M > 0 {
				line += " " + p.st.cost.Render(fmt.Sprintf("$%.2f/$%.2f per 1M", m.InputPer1M, m.OutputPer1M))
			}
			fmt.Fprintln(p.w, line)
		}
	}
}

// Agents prints the council with usage totals.
func (p *Printer) Agents(agents []domain.Agent) {
	p.Header("Council")
	for _, a := range agents {
		fmt.Fprintf(p.w, "  %s · %s  %s  %d tokens  %s\n",
			p.st.agent.Render(a.ID), a.Role, p.st.dim.Render(a.Model), a.TotalTokens(),
			p.st.cost.Render(fmt.Sprintf("$%.4f", a.CostUsed)))
	}
}

// Iteration prints one round: messages, then the moderator summary.
func (p *Printer) Iteration(it domain.Iteration) {
	p.Header(fmt.Sprintf("Iteration %d", it.Number))
	if it.Guidance != "" {
		fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Guidance:"), it.Guidance)
	}

	for _, m := range it.Messages {
		fmt.Fprintf(p.w, "\n%s · %s  %s\n", p.st.agent.Render(m.AgentID), m.AgentRole,
			p.st.dim.Render(fmt.Sprintf("%d tokens  $%.4f", m.TotalTokens(), m.Cost)))
		if m.Failed() {
			fmt.Fprintf(p.w, "%s %s\n", p.st.danger.Render(failedMarker), m.ErrorDetail)
			continue
		}
		fmt.Fprintln(p.w, m.Content)
	}

	if n := it.FailedMessages(); n > 0 {
		fmt.Fprintf(p.w, "\n%s\n", p.st.warning.Render(fmt.Sprintf("%d of %d agents failed to answer", n, len(it.Messages))))
	}

	s := it.Summary
	fmt.Fprintf(p.w, "\n%s\n", p.st.header.Render(moderatorName+"'s summary"))
	if s.Summary != "" {
		fmt.Fprintln(p.w, s.Summary)
	}
	if len(s.KeyDisagreements) > 0 {
		fmt.Fprintln(p.w, p.st.label.Render("Key disagreements:"))
		for _, d := range s.KeyDisagreements {
			fmt.Fprintf(p.w, "  - %s\n", d)
		}
	}
	switch s.Suggestion.Kind {
	case domain.SuggestionSingle:
		fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Suggested direction:"), s.Suggestion.Text)
	case domain.SuggestionOptions:
		fmt.Fprintln(p.w, p.st.label.Render("Suggested directions:"))
		for _, d := range s.Suggestion.Options {
			if d.Description != "" {
				fmt.Fprintf(p.w, "  - %s: %s\n", d.Option, d.Description)
			} else {
				fmt.Fprintf(p.w, "  - %s\n", d.Option)
			}
		}
	}
	fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Iteration cost:"), p.st.cost.Render(fmt.Sprintf("$%.4f", s.TotalCost)))
}

// Session prints the full mirror: header, budget, council and every round.
func (p *Printer) Session(s *domain.Session, st budget.Status) {
	p.Header("Session " + s.ID)
	fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Issue:"), s.Issue)
	fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Status:"), p.status(s.Status))
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("Created:"), s.CreatedAt.Format(timeLayout))
	}
	p.Budget(s.Budget, st)
	p.Agents(s.Agents)
	for _, it := range s.Iterations {
		p.Iteration(it)
	}
}

func (p *Printer) status(s domain.SessionStatus) string {
	switch s {
	case domain.SessionActive:
		return p.st.ok.Render(string(s))
	case domain.SessionPaused:
		return p.st.warning.Render(string(s))
	case domain.SessionError:
		return p.st.danger.Render(string(s))
	default:
		return p.st.dim.Render(string(s))
	}
}

// SessionList prints the registry as a table in backend order.
func (p *Printer) SessionList(items []domain.SessionListItem) {
	if len(items) == 0 {
		p.Info("No sessions yet.")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		created := ""
		if !it.CreatedAt.IsZero() {
			created = it.CreatedAt.Format(timeLayout)
		}
		rows = append(rows, []string{
			it.ID,
			string(it.Status),
			fmt.Sprintf("%d", it.IterationCount),
			fmt.Sprintf("$%.4f", it.TotalCost),
			created,
			ansi.Truncate(strings.Join(strings.Fields(it.Issue), " "), issuePreview, "…"),
		})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "STATUS", "ITER", "COST", "CREATED", "ISSUE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.st.label.PaddingRight(1)
			}
			return p.st.plain.PaddingRight(1)
		})
	fmt.Fprintln(p.w, t.String())
}

// Pricing prints the backend's approximate price list.
func (p *Printer) Pricing(pl *domain.PriceList) {
	if pl == nil || len(pl.Prices) == 0 {
		p.Info("No pricing published.")
		return
	}
	rows := make([][]string, 0, len(pl.Prices))
	for _, m := range pl.Prices {
		rows = append(rows, []string{
			m.Provider,
			m.Model,
			m.ModelID,
			fmt.Sprintf("$%.2f", m.InputPer1M),
			fmt.Sprintf("$%.2f", m.OutputPer1M),
		})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("PROVIDER", "MODEL", "ID", "INPUT/1M", "OUTPUT/1M").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.st.label.PaddingRight(1)
			}
			if col >= 3 {
				return p.st.cost.PaddingRight(1)
			}
			return p.st.plain.PaddingRight(1)
		})
	fmt.Fprintln(p.w, t.String())
	if pl.Note != "" {
		p.Info("%s", pl.Note)
	}
}

// Tokens prints the size of staged guidance.
func (p *Printer) Tokens(c tokens.Count) {
	if c.Estimated {
		p.Info("≈ %d tokens (estimate)", c.Tokens)
		return
	}
	p.Info("%d tokens (%s)", c.Tokens, c.Model)
}

// Choices prints numbered guidance choices.
func (p *Printer) Choices(choices []Choice) {
	for i, c := range choices {
		line := c.Guidance
		if c.Detail != "" {
			line += ": " + p.st.dim.Render(c.Detail)
		}
		fmt.Fprintf(p.w, "  %s %s\n", p.st.label.Render(fmt.Sprintf("[%d]", i+1)), line)
	}
}
