package present

import (
	"strings"

	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/segment"
)

// Choice is one selectable direction. Guidance is staged verbatim when the
// choice is picked; Detail is shown alongside it only.
type Choice struct {
	Guidance string
	Detail   string
}

// Choices turns a suggestion into selectable guidance. Structured options
// offer their option text; free text is split by the segmenter.
func Choices(s domain.Suggestion, seg *segment.Segmenter) []Choice {
	switch s.Kind {
	case domain.SuggestionOptions:
		out := make([]Choice, 0, len(s.Options))
		for _, d := range s.Options {
			out = append(out, Choice{Guidance: d.Option, Detail: strings.TrimSpace(d.Description)})
		}
		return out
	case domain.SuggestionSingle:
		if seg == nil {
			seg = segment.New(segment.DefaultOptions())
		}
		frags := seg.Segment(s.Text)
		out := make([]Choice, len(frags))
		for i, f := range frags {
			out[i] = Choice{Guidance: f}
		}
		return out
	default:
		return nil
	}
}
