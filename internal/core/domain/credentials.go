package domain

import (
	"sort"
	"strings"
)

// Provider names an upstream LLM vendor whose key the user supplies.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderMistral   Provider = "mistral"
	ProviderGoogle    Provider = "google"
	ProviderCohere    Provider = "cohere"
)

// KnownProviders lists the providers the backend accepts keys for.
var KnownProviders = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderMistral,
	ProviderGoogle,
	ProviderCohere,
}

// ParseProvider normalises a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownProviders {
		if p == known {
			return p, nil
		}
	}
	return "", ErrValidation("unknown provider " + s).WithCode(CodeUnknownProvider).WithParam("provider")
}

// Credentials maps provider to API key.
type Credentials map[Provider]string

// Filtered returns only trimmed, non-empty entries.
func (c Credentials) Filtered() Credentials {
	out := make(Credentials, len(c))
	for p, key := range c {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[p] = key
	}
	return out
}

// Empty reports whether no usable key is present.
func (c Credentials) Empty() bool {
	return len(c.Filtered()) == 0
}

// Providers returns the providers with a usable key, sorted.
func (c Credentials) Providers() []Provider {
	f := c.Filtered()
	out := make([]Provider, 0, len(f))
	for p := range f {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge returns c overlaid with other; non-empty values in other win.
func (c Credentials) Merge(other Credentials) Credentials {
	out := c.Filtered()
	for p, key := range other.Filtered() {
		out[p] = key
	}
	return out
}

// Mask renders a key for display without revealing it.
func Mask(key string) string {
	r := []rune(strings.TrimSpace(key))
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}
