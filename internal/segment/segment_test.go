package segment

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "lettered list with long preamble",
			in:   "Consider these options: (a) Reduce scope to the core users (b) Delay the launch by a quarter (c) Hire a contractor",
			want: []string{
				"Consider these options:",
				"(a) Reduce scope to the core users",
				"(b) Delay the launch by a quarter",
				"(c) Hire a contractor",
			},
		},
		{
			name: "lettered list with short preamble dropped",
			in:   "Options: (a) first thing (b) second",
			want: []string{"(a) first thing", "(b) second"},
		},
		{
			name: "single marker is not a list",
			in:   "(a) only one option here. Something Else is here too.",
			want: []string{"(a) only one option here.", "Something Else is here too."},
		},
		{
			name: "sentence boundaries",
			in:   "Focus on the regulatory risk first. Then compare the vendor pricing models; Finally draft a rollout plan.",
			want: []string{
				"Focus on the regulatory risk first.",
				"Then compare the vendor pricing models;",
				"Finally draft a rollout plan.",
			},
		},
		{
			name: "short pieces dropped",
			in:   "Next steps: Ask legal. Review the contract terms carefully.",
			want: []string{"Review the contract terms carefully."},
		},
		{
			name: "coarse period fallback",
			in:   "Scope: cut it down. Timeline: push it out.",
			want: []string{"Scope: cut it down.", "Timeline: push it out."},
		},
		{
			name: "no boundary returns trimmed input",
			in:   "   just keep going with the current plan  ",
			want: []string{"just keep going with the current plan"},
		},
		{
			name: "short text returned whole",
			in:   "ok.",
			want: []string{"ok."},
		},
		{
			name: "lowercase after period is not a boundary",
			in:   "use e.g. a phased rollout. this keeps risk low",
			want: []string{"use e.g. a phased rollout. this keeps risk low"},
		},
		{
			name: "empty",
			in:   " \n\t ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segment(%q)\n got  %q\n want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSegment_MarkersInOrder(t *testing.T) {
	inputs := []string{
		"(a) x (b) y",
		"Pick one of the following directions: (a) tighten the budget (b) widen the council (c) stop here",
		"Try (b) before (a) if time allows",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got := Segment(in)
			markers := markerRe.FindAllStringSubmatch(in, -1)

			var lettered []string
			for _, f := range got {
				if markerRe.MatchString(f) && strings.HasPrefix(f, "(") {
					lettered = append(lettered, f)
				}
			}
			if len(lettered) != len(markers) {
				t.Fatalf("got %d lettered fragments %q, want %d", len(lettered), got, len(markers))
			}
			for i, m := range markers {
				if !strings.HasPrefix(lettered[i], "("+m[1]+")") {
					t.Errorf("fragment %d = %q, want prefix (%s)", i, lettered[i], m[1])
				}
			}
		})
	}
}

func TestSegment_EmptyMarkersDropped(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "trailing empty marker",
			in:   "Options: (a) cut costs, (b) raise prices, or (c).",
			want: []string{"(a) cut costs,", "(b) raise prices, or"},
		},
		{
			name: "one usable marker falls back to sentences",
			in:   "Consider (a) (b) widening the pilot to two regions now.",
			want: []string{"Consider (a) (b) widening the pilot to two regions now."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Segment(%q)\n got  %q\n want %q", tt.in, got, tt.want)
			}
			for _, f := range got {
				if m := markerRe.FindStringIndex(f); m != nil && m[0] == 0 && !hasWord(f[m[1]:]) {
					t.Errorf("fragment %q carries no text after its marker", f)
				}
			}
		})
	}
}

func TestSegment_SentencesKeepWordingAndOrder(t *testing.T) {
	in := "Quantify the downside scenario. Interview three pilot customers: Their feedback matters most. Decide by Friday."
	got := Segment(in)
	if len(got) < 2 {
		t.Fatalf("Segment() = %q, want a real split", got)
	}

	pos := 0
	for _, f := range got {
		if n := utf8.RuneCountInString(f); n < DefaultMinFragmentLength {
			t.Errorf("fragment %q has %d runes, want >= %d", f, n, DefaultMinFragmentLength)
		}
		idx := strings.Index(in[pos:], f)
		if idx < 0 {
			t.Fatalf("fragment %q not found in order in input", f)
		}
		pos += idx + len(f)
	}
}

func TestNew_CustomThresholds(t *testing.T) {
	s := New(Options{MinFragmentLength: 5, MinPreambleLength: 2})

	got := s.Segment("Next steps: Ask legal. Review the contract.")
	want := []string{"Next steps:", "Ask legal.", "Review the contract."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment() = %q, want %q", got, want)
	}

	got = s.Segment("Do: (a) one (b) two")
	want = []string{"Do:", "(a) one", "(b) two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segment() = %q, want %q", got, want)
	}
}

func TestNew_ZeroOptionsUseDefaults(t *testing.T) {
	s := New(Options{})
	if s.opts != DefaultOptions() {
		t.Errorf("opts = %+v, want %+v", s.opts, DefaultOptions())
	}
}
