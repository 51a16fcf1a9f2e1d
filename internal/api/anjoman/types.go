// Package anjoman provides the wire types and HTTP client for the
// deliberation backend's REST API.
package anjoman

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// errorMarker prefixes agent message content the backend produced instead of an answer.
const errorMarker = "[Error"

// Timestamp accepts RFC 3339 and the zone-less ISO form the backend emits.
// Zone-less values are read in local time.
type Timestamp struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = ts
		return nil
	}
	for _, layout := range zonelessLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Agent is an agent configuration as sent and received.
type Agent struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Style     string  `json:"style,omitempty"`
	Model     string  `json:"model"`
	CostUsed  float64 `json:"cost_used"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
}

// AgentMessage is one agent's answer in a round.
type AgentMessage struct {
	AgentID   string    `json:"agent_id"`
	AgentRole string    `json:"agent_role"`
	Content   string    `json:"content"`
	Error     string    `json:"error,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	Cost      float64   `json:"cost"`
}

// Direction is a structured suggested next step.
type Direction struct {
	Option      string `json:"option"`
	Description string `json:"description"`
}

// IterationSummary is the moderator's digest of a round. Newer backends send
// SuggestedDirections; older ones only SuggestedDirection.
type IterationSummary struct {
	IterationNumber     int         `json:"iteration_number"`
	Summary             string      `json:"summary"`
	KeyDisagreements    []string    `json:"key_disagreements,omitempty"`
	SuggestedDirection  string      `json:"suggested_direction,omitempty"`
	SuggestedDirections []Direction `json:"suggested_directions,omitempty"`
	TotalCost           float64     `json:"total_cost"`
	Timestamp           Timestamp   `json:"timestamp"`
}

// Iteration is one completed round.
type Iteration struct {
	IterationNumber int               `json:"iteration_number"`
	Messages        []AgentMessage    `json:"messages"`
	Summary         *IterationSummary `json:"summary"`
	UserGuidance    *string           `json:"user_guidance,omitempty"`
}

// Budget is the server's spend snapshot.
type Budget struct {
	TotalBudget      float64 `json:"total_budget"`
	Used             float64 `json:"used"`
	Remaining        float64 `json:"remaining"`
	WarningThreshold float64 `json:"warning_threshold"`
}

// Session is the full server representation of a session.
type Session struct {
	SessionID  string      `json:"session_id"`
	CreatedAt  Timestamp   `json:"created_at"`
	UpdatedAt  Timestamp   `json:"updated_at"`
	Issue      string      `json:"issue"`
	Agents     []Agent     `json:"agents"`
	Iterations []Iteration `json:"iterations"`
	Budget     Budget      `json:"budget"`
	Status     string      `json:"status"`
}

// SessionListItem is one row of GET /sessions.
type SessionListItem struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      Timestamp `json:"created_at"`
	Issue          string    `json:"issue"`
	Status         string    `json:"status"`
	TotalCost      float64   `json:"total_cost"`
	IterationCount int       `json:"iteration_count"`
}

// ModelInfo is one entry of the model catalog.
type ModelInfo struct {
	ModelID     string  `json:"model_id"`
	DisplayName string  `json:"display_name"`
	Provider    string  `json:"provider"`
	Tier        string  `json:"tier,omitempty"`
	Description string  `json:"description,omitempty"`
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

// ModelPrice is one row of GET /models/pricing.
type ModelPrice struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	ModelID     string  `json:"model_id"`
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

// PricingResponse is the reply to GET /models/pricing.
type PricingResponse struct {
	Pricing []ModelPrice `json:"pricing"`
	Note    string       `json:"note"`
}

// ProposeRequest is the body of POST /sessions/propose.
type ProposeRequest struct {
	Issue           string            `json:"issue"`
	Budget          float64           `json:"budget"`
	AgentCount      *int              `json:"agent_count"`
	ModelPreference string            `json:"model_preference"`
	APIKeys         map[string]string `json:"api_keys"`
}

// ProposalResponse is the reply to POST /sessions/propose.
type ProposalResponse struct {
	ProposedAgents  []Agent     `json:"proposed_agents"`
	Rationale       string      `json:"rationale"`
	AvailableModels []ModelInfo `json:"available_models"`
}

// CreateSessionRequest is the body of POST /sessions/create.
type CreateSessionRequest struct {
	Issue           string            `json:"issue"`
	Budget          float64           `json:"budget"`
	SuggestedAgents []Agent           `json:"suggested_agents"`
	APIKeys         map[string]string `json:"api_keys"`
}

// IterateRequest is the body of POST /sessions/{id}/iterate.
type IterateRequest struct {
	SessionID        string            `json:"session_id"`
	UserGuidance     *string           `json:"user_guidance,omitempty"`
	AcceptSuggestion bool              `json:"accept_suggestion"`
	APIKeys          map[string]string `json:"api_keys"`
}

// ErrorResponse is the FastAPI error envelope. Detail is either a string or
// a list of validation items.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// ParseErrorDetail extracts the human-readable detail from an error body.
// It returns "" when the body carries none.
func ParseErrorDetail(data []byte) string {
	var resp ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s
	}

	var items []validationItem
	if err := json.Unmarshal(resp.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// APIKeys converts credentials to the backend's "<provider>_api_key" map.
func APIKeys(creds domain.Credentials) map[string]string {
	out := make(map[string]string, len(creds))
	for p, key := range creds.Filtered() {
		out[string(p)+"_api_key"] = key
	}
	return out
}

// FromDomainAgents converts a roster for sending.
func FromDomainAgents(agents []domain.Agent) []Agent {
	out := make([]Agent, len(agents))
	for i, a := range agents {
		out[i] = Agent(a)
	}
	return out
}

// ToDomain converts the agent.
func (a Agent) ToDomain() domain.Agent {
	return domain.Agent(a)
}

func toDomainAgents(agents []Agent) []domain.Agent {
	out := make([]domain.Agent, len(agents))
	for i, a := range agents {
		out[i] = a.ToDomain()
	}
	return out
}

// ToDomain converts the message, tagging it failed when it carries an
// explicit error or its content starts with the backend's error marker.
func (m AgentMessage) ToDomain() domain.AgentMessage {
	out := domain.AgentMessage{
		AgentID:   m.AgentID,
		AgentRole: m.AgentRole,
		Outcome:   domain.OutcomeOK,
		Content:   m.Content,
		Timestamp: m.Timestamp.Time,
		TokensIn:  m.TokensIn,
		TokensOut: m.TokensOut,
		Cost:      m.Cost,
	}
	switch {
	case m.Error != "":
		out.Outcome = domain.OutcomeFailed
		out.ErrorDetail = m.Error
		out.Content = ""
	case strings.HasPrefix(strings.TrimSpace(m.Content), errorMarker):
		out.Outcome = domain.OutcomeFailed
		out.ErrorDetail = strings.TrimSpace(m.Content)
		out.Content = ""
	}
	return out
}

// ToDomain converts the summary, resolving the two suggestion fields into one variant.
func (s *IterationSummary) ToDomain() domain.IterationSummary {
	if s == nil {
		return domain.IterationSummary{}
	}
	out := domain.IterationSummary{
		Summary:          s.Summary,
		KeyDisagreements: append([]string(nil), s.KeyDisagreements...),
		TotalCost:        s.TotalCost,
		Timestamp:        s.Timestamp.Time,
	}
	if len(s.SuggestedDirections) > 0 {
		dirs := make([]domain.Direction, len(s.SuggestedDirections))
		for i, d := range s.SuggestedDirections {
			dirs[i] = domain.Direction(d)
		}
		out.Suggestion = domain.OptionsSuggestion(dirs)
	}
	if out.Suggestion.Kind == domain.SuggestionNone {
		out.Suggestion = domain.SingleSuggestion(s.SuggestedDirection)
	}
	return out
}

// ToDomain converts the iteration.
func (it Iteration) ToDomain() domain.Iteration {
	out := domain.Iteration{
		Number:   it.IterationNumber,
		Messages: make([]domain.AgentMessage, len(it.Messages)),
		Summary:  it.Summary.ToDomain(),
	}
	for i, m := range it.Messages {
		out.Messages[i] = m.ToDomain()
	}
	if it.UserGuidance != nil {
		out.Guidance = *it.UserGuidance
	}
	return out
}

// ToDomain converts the session.
func (s *Session) ToDomain() *domain.Session {
	out := &domain.Session{
		ID:         s.SessionID,
		CreatedAt:  s.CreatedAt.Time,
		UpdatedAt:  s.UpdatedAt.Time,
		Issue:      s.Issue,
		Agents:     toDomainAgents(s.Agents),
		Iterations: make([]domain.Iteration, len(s.Iterations)),
		Budget:     domain.Budget(s.Budget),
		Status:     domain.SessionStatus(s.Status),
	}
	for i, it := range s.Iterations {
		out.Iterations[i] = it.ToDomain()
	}
	return out
}

// ToDomain converts the list row.
func (s SessionListItem) ToDomain() domain.SessionListItem {
	return domain.SessionListItem{
		ID:             s.SessionID,
		CreatedAt:      s.CreatedAt.Time,
		Issue:          s.Issue,
		Status:         domain.SessionStatus(s.Status),
		TotalCost:      s.TotalCost,
		IterationCount: s.IterationCount,
	}
}

// ToDomain converts the catalog entry.
func (m ModelInfo) ToDomain() domain.ModelInfo {
	return domain.ModelInfo(m)
}

// ToDomain converts the proposal.
func (p *ProposalResponse) ToDomain() *domain.Proposal {
	out := &domain.Proposal{
		Agents:    toDomainAgents(p.ProposedAgents),
		Rationale: p.Rationale,
		Models:    make([]domain.ModelInfo, len(p.AvailableModels)),
	}
	for i, m := range p.AvailableModels {
		out.Models[i] = m.ToDomain()
	}
	return out
}

// ToDomain converts the price list.
func (p *PricingResponse) ToDomain() *domain.PriceList {
	out := &domain.PriceList{
		Prices: make([]domain.ModelPrice, len(p.Pricing)),
		Note:   p.Note,
	}
	for i, m := range p.Pricing {
		out.Prices[i] = domain.ModelPrice(m)
	}
	return out
}
