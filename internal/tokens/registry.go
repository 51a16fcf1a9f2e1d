// Package tokens estimates how many tokens a piece of guidance text costs
// before it is sent to the council.
package tokens

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Count is a token count for one text.
type Count struct {
	Tokens int
	// Model is the model the count was computed for, empty for a heuristic estimate.
	Model string
	// Estimated is true when no tokenizer for the model was available.
	Estimated bool
}

// Counter counts tokens in plain text for the models it supports.
type Counter interface {
	CountText(model, text string) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a tokenizer per model and falls back to the Estimator.
type Registry struct {
	counters []Counter
	fallback *Estimator
}

// NewRegistry creates a registry with the tiktoken counter registered.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewOpenAICounter())
	return r
}

// Register adds a counter. Earlier registrations win.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// Count counts text for the first model a registered counter supports.
// The guidance is read by every agent, so any council model is a fair basis.
func (r *Registry) Count(text string, models ...string) Count {
	for _, model := range models {
		for _, c := range r.counters {
			if !c.SupportsModel(model) {
				continue
			}
			n, err := c.CountText(model, text)
			if err != nil {
				break
			}
			return Count{Tokens: n, Model: model}
		}
	}
	return Count{Tokens: r.fallback.Estimate(text), Estimated: true}
}

// Estimator approximates token counts from character length.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// Estimate returns ceil(runes / CharsPerToken) for the trimmed text.
func (e *Estimator) Estimate(text string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(math.Ceil(float64(n) / cpt))
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
