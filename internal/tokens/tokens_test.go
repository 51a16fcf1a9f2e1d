package tokens

import (
	"errors"
	"testing"
)

func TestEstimator_Estimate(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"  focus on risk  ", 4},
		{"ریسک", 1},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := e.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestOpenAICounter_SupportsModel(t *testing.T) {
	c := NewOpenAICounter()

	tests := []struct {
		model    string
		expected bool
	}{
		{"gpt-4o", true},
		{"gpt-4o-mini", true},
		{"GPT-4-turbo", true},
		{"o3-mini", true},
		{"claude-3-5-sonnet-20241022", false},
		{"mistral-large-latest", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := c.SupportsModel(tt.model); got != tt.expected {
				t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

func TestOpenAICounter_CountText(t *testing.T) {
	c := NewOpenAICounter()

	tests := []struct {
		name      string
		model     string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "gpt-4o", "", 0, 0},
		{"short guidance", "gpt-4o", "Focus on risk.", 2, 6},
		{"sentence", "gpt-4", "The quick brown fox jumps over the lazy dog.", 8, 14},
		{"unknown gpt variant", "gpt-4o-2099-preview", "Compare two vendors side by side.", 4, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CountText(tt.model, tt.text)
			if err != nil {
				t.Fatalf("CountText() error = %v", err)
			}
			if got < tt.minTokens || got > tt.maxTokens {
				t.Errorf("CountText() = %d, want between %d and %d", got, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

type stubCounter struct {
	supports func(model string) bool
	count    func(model, text string) (int, error)
}

func (s stubCounter) SupportsModel(model string) bool { return s.supports(model) }
func (s stubCounter) CountText(model, text string) (int, error) { return s.count(model, text) }

func TestRegistry_Count(t *testing.T) {
	r := &Registry{fallback: NewEstimator()}
	r.Register(stubCounter{
		supports: func(model string) bool { return model == "exact-1" },
		count:    func(model, text string) (int, error) { return 42, nil },
	})

	if got := r.Count("focus on risk", "claude-3", "exact-1"); got.Tokens != 42 || got.Model != "exact-1" || got.Estimated {
		t.Errorf("Count() = %+v, want exact count from exact-1", got)
	}
	if got := r.Count("focus on risk", "claude-3"); !got.Estimated || got.Tokens != 4 {
		t.Errorf("Count() = %+v, want estimate of 4", got)
	}
	if got := r.Count("abcd"); !got.Estimated || got.Tokens != 1 {
		t.Errorf("Count() with no models = %+v", got)
	}
}

func TestRegistry_CountFallsBackOnError(t *testing.T) {
	r := &Registry{fallback: NewEstimator()}
	r.Register(stubCounter{
		supports: func(string) bool { return true },
		count:    func(string, string) (int, error) { return 0, errors.New("no codec") },
	})

	if got := r.Count("abcdefgh", "gpt-4o"); !got.Estimated || got.Tokens != 2 {
		t.Errorf("Count() = %+v, want estimate after counter error", got)
	}
}

func TestNewRegistry_UsesTiktoken(t *testing.T) {
	got := NewRegistry().Count("Focus on risk.", "claude-3-haiku", "gpt-4o-mini")
	if got.Estimated || got.Model != "gpt-4o-mini" || got.Tokens <= 0 {
		t.Errorf("Count() = %+v, want tiktoken count for gpt-4o-mini", got)
	}
}

func TestModelMatcher(t *testing.T) {
	matcher := NewModelMatcher(
		[]string{"gpt-", "o3"},
		[]string{"davinci"},
	)

	tests := []struct {
		model    string
		expected bool
	}{
		{"gpt-4", true},
		{"o3-mini", true},
		{"davinci", true},
		{"text-davinci-003", false},
		{"llama-2", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := matcher.Matches(tt.model); got != tt.expected {
				t.Errorf("Matches(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

func BenchmarkOpenAICounter_CountText(b *testing.B) {
	c := NewOpenAICounter()
	text := "Quantify the downside risk first. Then compare two vendors side by side."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CountText("gpt-4o", text)
	}
}
