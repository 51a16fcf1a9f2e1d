package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the server-reported lifecycle status of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionPaused    SessionStatus = "paused"
	SessionError     SessionStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionPaused, SessionError:
		return true
	}
	return false
}

// ModelPreference is an advisory hint for the proposal request. The server may ignore it.
type ModelPreference string

const (
	PreferenceBudget      ModelPreference = "budget"
	PreferenceBalanced    ModelPreference = "balanced"
	PreferencePerformance ModelPreference = "performance"
)

// ParseModelPreference parses a preference name. The empty string maps to balanced.
func ParseModelPreference(s string) (ModelPreference, error) {
	switch p := ModelPreference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferenceBalanced, nil
	case PreferenceBudget, PreferenceBalanced, PreferencePerformance:
		return p, nil
	default:
		return "", ErrValidation(fmt.Sprintf("unknown model preference %q", s)).
			WithCode(CodeInvalidPreference).
			WithParam("model_preference")
	}
}

// Agent is one member of the deliberation council.
// It is created once from a confirmed proposal; only the usage totals change afterwards.
type Agent struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Style     string  `json:"style,omitempty"`
	Model     string  `json:"model"`
	CostUsed  float64 `json:"cost_used"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
}

// TotalTokens returns tokens in plus tokens out.
func (a Agent) TotalTokens() int {
	return a.TokensIn + a.TokensOut
}

// MessageOutcome tags whether an agent produced a substantive answer.
type MessageOutcome int

const (
	OutcomeOK MessageOutcome = iota
	OutcomeFailed
)

func (o MessageOutcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AgentMessage is one agent's contribution to a round.
// A failed message does not fail the round; it is still counted in the totals.
type AgentMessage struct {
	AgentID   string
	AgentRole string
	Outcome   MessageOutcome
	// Content holds the answer when Outcome is OutcomeOK.
	Content string
	// ErrorDetail holds the failure description when Outcome is OutcomeFailed.
	ErrorDetail string
	Timestamp   time.Time
	TokensIn    int
	TokensOut   int
	Cost        float64
}

// Failed reports whether the agent failed to answer.
func (m AgentMessage) Failed() bool {
	return m.Outcome == OutcomeFailed
}

// TotalTokens returns tokens in plus tokens out.
func (m AgentMessage) TotalTokens() int {
	return m.TokensIn + m.TokensOut
}

// Direction is one structured next-step option offered by the summary.
type Direction struct {
	Option      string `json:"option"`
	Description string `json:"description"`
}

// SuggestionKind discriminates the Suggestion variant.
type SuggestionKind int

const (
	SuggestionNone SuggestionKind = iota
	SuggestionSingle
	SuggestionOptions
)

// Suggestion is either a single free-text direction or a list of structured options.
type Suggestion struct {
	Kind    SuggestionKind
	Text    string
	Options []Direction
}

// SingleSuggestion builds the free-text variant.
func SingleSuggestion(text string) Suggestion {
	if strings.TrimSpace(text) == "" {
		return Suggestion{}
	}
	return Suggestion{Kind: SuggestionSingle, Text: text}
}

// OptionsSuggestion builds the structured variant. Options with a blank option label are skipped.
func OptionsSuggestion(opts []Direction) Suggestion {
	kept := make([]Direction, 0, len(opts))
	for _, o := range opts {
		if strings.TrimSpace(o.Option) == "" {
			continue
		}
		kept = append(kept, o)
	}
	if len(kept) == 0 {
		return Suggestion{}
	}
	return Suggestion{Kind: SuggestionOptions, Options: kept}
}

// IterationSummary is the moderator's digest of one round.
type IterationSummary struct {
	Summary          string
	KeyDisagreements []string
	Suggestion       Suggestion
	TotalCost        float64
	Timestamp        time.Time
}

// Iteration is one completed round. It is immutable once received.
type Iteration struct {
	Number   int
	Messages []AgentMessage
	Summary  IterationSummary
	// Guidance is the user steering text that produced this round, if any.
	Guidance string
}

// FailedMessages counts messages whose agent failed to answer.
func (it Iteration) FailedMessages() int {
	n := 0
	for _, m := range it.Messages {
		if m.Failed() {
			n++
		}
	}
	return n
}

// Budget is the server-authoritative spend snapshot.
type Budget struct {
	TotalBudget      float64 `json:"total_budget"`
	Used             float64 `json:"used"`
	Remaining        float64 `json:"remaining"`
	WarningThreshold float64 `json:"warning_threshold"`
}

// Session mirrors one server-owned deliberation.
type Session struct {
	ID         string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Issue      string
	Agents     []Agent
	Iterations []Iteration
	Budget     Budget
	Status     SessionStatus
}

// Validate checks the structural invariants the client depends on:
// iterations are numbered 1..n without gaps and the status is known.
func (s *Session) Validate() error {
	if s.ID == "" {
		return ErrValidation("session has no id").WithCode(CodeOutOfSync).WithParam("session_id")
	}
	if !s.Status.Valid() {
		return ErrValidation(fmt.Sprintf("session %s has unknown status %q", s.ID, s.Status)).WithCode(CodeOutOfSync)
	}
	for i, it := range s.Iterations {
		if it.Number != i+1 {
			return ErrValidation(fmt.Sprintf("session %s: iteration at position %d is numbered %d", s.ID, i+1, it.Number)).
				WithCode(CodeOutOfSync)
		}
	}
	return nil
}

// LastIteration returns the most recent round.
func (s *Session) LastIteration() (Iteration, bool) {
	if len(s.Iterations) == 0 {
		return Iteration{}, false
	}
	return s.Iterations[len(s.Iterations)-1], true
}

// Clone returns a deep copy so callers cannot mutate the controller's mirror.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Agents = append([]Agent(nil), s.Agents...)
	out.Iterations = make([]Iteration, len(s.Iterations))
	for i, it := range s.Iterations {
		it.Messages = append([]AgentMessage(nil), it.Messages...)
		it.Summary.KeyDisagreements = append([]string(nil), it.Summary.KeyDisagreements...)
		it.Summary.Suggestion.Options = append([]Direction(nil), it.Summary.Suggestion.Options...)
		out.Iterations[i] = it
	}
	return &out
}

// SessionListItem is the lightweight registry view of a session.
type SessionListItem struct {
	ID             string
	CreatedAt      time.Time
	Issue          string
	Status         SessionStatus
	TotalCost      float64
	IterationCount int
}

// ModelInfo describes one selectable model from the catalog.
type ModelInfo struct {
	ModelID     string
	DisplayName string
	Provider    string
	Tier        string
	Description string
	InputPer1M  float64
	OutputPer1M float64
}

// Label returns the display name, falling back to the id.
func (m ModelInfo) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ModelID
}

// ModelPrice is one row of the backend's approximate price list.
type ModelPrice struct {
	Provider    string
	Model       string
	ModelID     string
	InputPer1M  float64
	OutputPer1M float64
}

// PriceList is the backend's approximate per-model pricing.
type PriceList struct {
	Prices []ModelPrice
	Note   string
}

// Proposal is a transient, unconfirmed agent roster.
type Proposal struct {
	Agents    []Agent
	Rationale string
	Models    []ModelInfo
}

// ProposeRequest carries the inputs of a proposal request.
type ProposeRequest struct {
	Issue  string
	Budget float64
	// AgentCount nil lets the server decide how many agents to propose.
	AgentCount  *int
	Preference  ModelPreference
	Credentials Credentials
}

// CreateSessionRequest carries the confirmed roster.
type CreateSessionRequest struct {
	Issue       string
	Budget      float64
	Agents      []Agent
	Credentials Credentials
}

// IterateRequest carries the inputs of one round.
type IterateRequest struct {
	// Guidance nil means no user steering for this round.
	Guidance         *string
	AcceptSuggestion bool
	Credentials      Credentials
}
