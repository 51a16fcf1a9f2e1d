// Package segment splits an unstructured advisory paragraph into
// independently selectable guidance fragments.
//
// The rules are heuristics. Abbreviations containing periods ("e.g. This")
// can over-split; that is a known limitation.
package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMinFragmentLength is the shortest sentence fragment kept, in runes.
	DefaultMinFragmentLength = 15

	// DefaultMinPreambleLength is the length a lead-in before a lettered list
	// must exceed to be kept as its own fragment, in runes.
	DefaultMinPreambleLength = 20
)

var markerRe = regexp.MustCompile(`\(([a-z])\)`)

// Options holds the length thresholds.
type Options struct {
	MinFragmentLength int
	MinPreambleLength int
}

// DefaultOptions returns the stock thresholds.
func DefaultOptions() Options {
	return Options{
		MinFragmentLength: DefaultMinFragmentLength,
		MinPreambleLength: DefaultMinPreambleLength,
	}
}

// Segmenter is safe for concurrent use.
type Segmenter struct {
	opts Options
}

// New creates a Segmenter. Non-positive thresholds fall back to the defaults.
func New(opts Options) *Segmenter {
	if opts.MinFragmentLength <= 0 {
		opts.MinFragmentLength = DefaultMinFragmentLength
	}
	if opts.MinPreambleLength <= 0 {
		opts.MinPreambleLength = DefaultMinPreambleLength
	}
	return &Segmenter{opts: opts}
}

var defaultSegmenter = New(DefaultOptions())

// Segment splits text with the default thresholds.
func Segment(text string) []string {
	return defaultSegmenter.Segment(text)
}

// Segment returns the ordered fragments of text. Whitespace-only input
// yields nil; any other input yields at least one fragment.
func (s *Segmenter) Segment(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if frags, ok := s.splitMarkers(trimmed); ok {
		return frags
	}

	frags := s.keep(splitSentences(trimmed))
	if len(frags) > 1 || (len(frags) == 1 && frags[0] != trimmed) {
		return frags
	}

	if frags := s.splitPeriods(trimmed); len(frags) > 1 {
		return frags
	}

	return []string{trimmed}
}

// splitMarkers handles text carrying a lettered list such as "(a) ... (b) ...".
// It reports false unless at least two markers carry text.
func (s *Segmenter) splitMarkers(text string) ([]string, bool) {
	locs := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) < 2 {
		return nil, false
	}

	items := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		rest := strings.TrimSpace(text[loc[1]:end])
		// A marker with nothing after it is not usable guidance.
		if !hasWord(rest) {
			continue
		}
		items = append(items, "("+text[loc[2]:loc[3]]+") "+rest)
	}
	if len(items) < 2 {
		return nil, false
	}

	frags := make([]string, 0, len(items)+1)
	if pre := strings.TrimSpace(text[:locs[0][0]]); utf8.RuneCountInString(pre) > s.opts.MinPreambleLength {
		frags = append(frags, pre)
	}
	return append(frags, items...), true
}

func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// splitSentences cuts after '.', ';' or ':' when whitespace and then an
// uppercase letter or '(' follows, and after any ':' followed by whitespace.
// The whitespace itself is dropped.
func splitSentences(text string) []string {
	runes := []rune(text)
	var pieces []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != ';' && r != ':' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if r == ':' || (j < len(runes) && (unicode.IsUpper(runes[j]) || runes[j] == '(')) {
			pieces = append(pieces, string(runes[start:i+1]))
			start = j
			i = j - 1
		}
	}
	return append(pieces, string(runes[start:]))
}

// splitPeriods is the coarse fallback: cut on ". " before an uppercase
// letter and restore the period each piece lost.
func (s *Segmenter) splitPeriods(text string) []string {
	runes := []rune(text)
	var pieces []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		pieces = append(pieces, string(runes[start:i]))
		start = j
		i = j - 1
	}
	pieces = append(pieces, string(runes[start:]))

	for i, p := range pieces {
		p = strings.TrimSpace(p)
		if p != "" && !strings.HasSuffix(p, ".") {
			p += "."
		}
		pieces[i] = p
	}
	return s.keep(pieces)
}

func (s *Segmenter) keep(pieces []string) []string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) < s.opts.MinFragmentLength {
			continue
		}
		out = append(out, p)
	}
	return out
}
