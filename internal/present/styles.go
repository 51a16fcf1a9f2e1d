// Package present renders sessions, budgets and guidance choices for the terminal.
package present

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette, Catppuccin Mocha.
var (
	colorSubtext = lipgloss.Color("#a6adc8")
	colorRed     = lipgloss.Color("#f38ba8")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorYellow  = lipgloss.Color("#f9e2af")
	colorBlue    = lipgloss.Color("#89b4fa")
	colorMauve   = lipgloss.Color("#cba6f7")
	colorPeach   = lipgloss.Color("#fab387")
)

type styles struct {
	header  lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
	agent   lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	danger  lipgloss.Style
	cost    lipgloss.Style
	info    lipgloss.Style
	plain   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(colorBlue),
		label:   r.NewStyle().Bold(true),
		dim:     r.NewStyle().Foreground(colorSubtext),
		agent:   r.NewStyle().Bold(true).Foreground(colorMauve),
		ok:      r.NewStyle().Foreground(colorGreen),
		warning: r.NewStyle().Foreground(colorYellow),
		danger:  r.NewStyle().Bold(true).Foreground(colorRed),
		cost:    r.NewStyle().Foreground(colorPeach),
		info:    r.NewStyle().Italic(true).Foreground(colorBlue),
		plain:   r.NewStyle(),
	}
}

// Printer writes styled output. Colour is detected from the writer, so
// output to a pipe or buffer is plain text.
type Printer struct {
	w  io.Writer
	st styles
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	return &Printer{w: w, st: newStyles(lipgloss.NewRenderer(w))}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }
