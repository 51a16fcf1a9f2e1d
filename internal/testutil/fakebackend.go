package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// backendTime mimics the zone-less timestamps the real backend emits.
const backendTime = "2006-01-02T15:04:05.000000"

type fakeAgent struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Style     *string `json:"style"`
	Model     string  `json:"model"`
	CostUsed  float64 `json:"cost_used"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
}

type fakeMessage struct {
	AgentID   string  `json:"agent_id"`
	AgentRole string  `json:"agent_role"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
}

type fakeDirection struct {
	Option      string `json:"option"`
	Description string `json:"description"`
}

type fakeSummary struct {
	IterationNumber     int             `json:"iteration_number"`
	Summary             string          `json:"summary"`
	KeyDisagreements    []string        `json:"key_disagreements"`
	SuggestedDirection  string          `json:"suggested_direction"`
	SuggestedDirections []fakeDirection `json:"suggested_directions,omitempty"`
	TotalCost           float64         `json:"total_cost"`
	Timestamp           string          `json:"timestamp"`
}

type fakeIteration struct {
	IterationNumber int           `json:"iteration_number"`
	Messages        []fakeMessage `json:"messages"`
	Summary         fakeSummary   `json:"summary"`
	UserGuidance    *string       `json:"user_guidance"`
}

type fakeBudget struct {
	TotalBudget      float64 `json:"total_budget"`
	Used             float64 `json:"used"`
	Remaining        float64 `json:"remaining"`
	WarningThreshold float64 `json:"warning_threshold"`
}

type fakeSession struct {
	SessionID  string          `json:"session_id"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
	Issue      string          `json:"issue"`
	Agents     []fakeAgent     `json:"agents"`
	Iterations []fakeIteration `json:"iterations"`
	Budget     fakeBudget      `json:"budget"`
	Status     string          `json:"status"`
}

type fakeFailure struct {
	status int
	detail string
}

// FakeBackend is an in-memory stand-in for the deliberation backend,
// served over a real HTTP listener.
type FakeBackend struct {
	*httptest.Server

	// RoundCost is charged per iteration, split across the agents.
	RoundCost float64
	// FailingAgent, when set, makes that agent id answer with an error marker.
	FailingAgent string
	// Structured makes summaries carry suggested_directions.
	Structured bool

	mu       sync.Mutex
	sessions map[string]*fakeSession
	order    []string
	failures map[string]fakeFailure
	calls    map[string]int
	bodies   map[string]map[string]any
}

// NewFakeBackend starts a fake backend that is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		RoundCost: 0.01,
		sessions:  make(map[string]*fakeSession),
		failures:  make(map[string]fakeFailure),
		calls:     make(map[string]int),
		bodies:    make(map[string]map[string]any),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/sessions/propose", f.track("propose", f.handlePropose))
	r.Post("/sessions/create", f.track("create", f.handleCreate))
	r.Get("/sessions", f.track("list", f.handleList))
	r.Get("/sessions/{id}", f.track("get", f.handleGet))
	r.Delete("/sessions/{id}", f.track("delete", f.handleDelete))
	r.Post("/sessions/{id}/iterate", f.track("iterate", f.handleIterate))
	r.Post("/sessions/{id}/complete", f.track("complete", f.handleComplete))
	r.Get("/models/pricing", f.track("pricing", f.handlePricing))

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// FailNext makes the next call of op ("propose", "create", "list", "get",
// "delete", "iterate", "complete", "pricing") fail with status and detail.
// An empty detail produces a non-JSON body.
func (f *FakeBackend) FailNext(op string, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = fakeFailure{status: status, detail: detail}
}

// Calls returns how many requests op has received.
func (f *FakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastBody returns the decoded JSON body of the last op request.
func (f *FakeBackend) LastBody(op string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[op]
}

// Seed stores a session directly and returns its id.
func (f *FakeBackend) Seed(issue string, total, used float64, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.newSession(issue, total, []fakeAgent{{ID: "ray-1", Role: "Analyst", Model: "gpt-4o-mini"}})
	s.Budget.Used = used
	s.Budget.Remaining = total - used
	s.Status = status
	return s.SessionID
}

// SetUsed overwrites a session's spend.
func (f *FakeBackend) SetUsed(id string, used float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Budget.Used = used
		s.Budget.Remaining = s.Budget.TotalBudget - used
	}
}

// Status returns a session's server status, or "" when it does not exist.
func (f *FakeBackend) Status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.Status
	}
	return ""
}

func (f *FakeBackend) track(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		f.mu.Lock()
		f.calls[op]++
		f.bodies[op] = body
		fail, failing := f.failures[op]
		delete(f.failures, op)
		f.mu.Unlock()

		if failing {
			if fail.detail == "" {
				http.Error(w, http.StatusText(fail.status), fail.status)
				return
			}
			writeDetail(w, fail.status, fail.detail)
			return
		}

		ctx := r.Context()
		next(w, r.WithContext(withBody(ctx, body)))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func hasKeys(body map[string]any) bool {
	keys, _ := body["api_keys"].(map[string]any)
	for _, v := range keys {
		if s, _ := v.(string); s != "" {
			return true
		}
	}
	return false
}

func now() string {
	return time.Now().Format(backendTime)
}

// newSession must be called with mu held.
func (f *FakeBackend) newSession(issue string, total float64, agents []fakeAgent) *fakeSession {
	s := &fakeSession{
		SessionID:  "anj-" + uuid.NewString()[:8],
		CreatedAt:  now(),
		UpdatedAt:  now(),
		Issue:      issue,
		Agents:     agents,
		Iterations: []fakeIteration{},
		Budget:     fakeBudget{TotalBudget: total, Remaining: total, WarningThreshold: 0.8},
		Status:     "active",
	}
	f.sessions[s.SessionID] = s
	f.order = append(f.order, s.SessionID)
	return s
}

func (f *FakeBackend) handlePropose(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	if !hasKeys(body) {
		writeDetail(w, http.StatusBadRequest, "At least one API key is required")
		return
	}

	count := 3
	if n, ok := body["agent_count"].(float64); ok && n > 0 {
		count = int(n)
	}
	roles := []string{"Analyst", "Strategist", "Critic", "Economist", "Historian", "Engineer"}
	agents := make([]fakeAgent, 0, count)
	for i := 0; i < count; i++ {
		agents = append(agents, fakeAgent{
			ID:    fmt.Sprintf("ray-%d", i+1),
			Role:  roles[i%len(roles)],
			Model: "gpt-4o-mini",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"proposed_agents": agents,
		"rationale":       fmt.Sprintf("%d complementary perspectives.", count),
		"available_models": []map[string]any{
			{"model_id": "gpt-4o-mini", "display_name": "GPT-4o mini", "provider": "openai", "tier": "budget", "input_per_1m": 0.15, "output_per_1m": 0.6},
			{"model_id": "gpt-4o", "display_name": "GPT-4o", "provider": "openai", "tier": "performance", "input_per_1m": 2.5, "output_per_1m": 10.0},
			{"model_id": "claude-3-5-haiku-20241022", "display_name": "Claude 3.5 Haiku", "provider": "anthropic", "tier": "balanced", "input_per_1m": 0.8, "output_per_1m": 4.0},
		},
	})
}

func (f *FakeBackend) handleCreate(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())
	issue, _ := body["issue"].(string)
	total, _ := body["budget"].(float64)
	if total == 0 {
		total = 5.0
	}

	var agents []fakeAgent
	if raw, err := json.Marshal(body["suggested_agents"]); err == nil {
		_ = json.Unmarshal(raw, &agents)
	}

	f.mu.Lock()
	s := f.newSession(issue, total, agents)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, s)
}

func (f *FakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := make([]map[string]any, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.sessions[f.order[i]]
		items = append(items, map[string]any{
			"session_id":      s.SessionID,
			"created_at":      s.CreatedAt,
			"issue":           s.Issue,
			"status":          s.Status,
			"total_cost":      s.Budget.Used,
			"iteration_count": len(s.Iterations),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (f *FakeBackend) lookup(w http.ResponseWriter, r *http.Request) (*fakeSession, bool) {
	s, ok := f.sessions[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Session not found")
	}
	return s, ok
}

func (f *FakeBackend) handleGet(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, s)
	}
}

func (f *FakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	delete(f.sessions, s.SessionID)
	for i, id := range f.order {
		if id == s.SessionID {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": s.SessionID})
}

func (f *FakeBackend) handleComplete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	s.Status = "completed"
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "session_id": s.SessionID})
}

func (f *FakeBackend) handleIterate(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r.Context())

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	if !hasKeys(body) {
		writeDetail(w, http.StatusBadRequest, "At least one API key is required")
		return
	}
	if s.Budget.Used >= s.Budget.TotalBudget {
		s.Status = "paused"
		writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Budget exceeded: $%.2f / $%.2f", s.Budget.Used, s.Budget.TotalBudget))
		return
	}

	n := len(s.Iterations) + 1
	share := 0.0
	if len(s.Agents) > 0 {
		share = f.RoundCost / float64(len(s.Agents))
	}
	msgs := make([]fakeMessage, 0, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		m := fakeMessage{
			AgentID:   a.ID,
			AgentRole: a.Role,
			Content:   fmt.Sprintf("%s view on round %d.", a.Role, n),
			Timestamp: now(),
			TokensIn:  100,
			TokensOut: 200,
			Cost:      share,
		}
		if a.ID == f.FailingAgent {
			m.Content = fmt.Sprintf("[Error: Unable to get response from %s] simulated outage", a.Model)
			m.TokensIn, m.TokensOut, m.Cost = 0, 0, 0
		}
		a.TokensIn += m.TokensIn
		a.TokensOut += m.TokensOut
		a.CostUsed += m.Cost
		s.Budget.Used += m.Cost
		msgs = append(msgs, m)
	}
	s.Budget.Remaining = s.Budget.TotalBudget - s.Budget.Used

	summary := fakeSummary{
		IterationNumber:    n,
		Summary:            fmt.Sprintf("Round %d summary.", n),
		KeyDisagreements:   []string{"Timeline"},
		SuggestedDirection: "Quantify the downside risk first. Then compare two vendors side by side.",
		TotalCost:          f.RoundCost,
		Timestamp:          now(),
	}
	if f.Structured {
		summary.SuggestedDirections = []fakeDirection{
			{Option: "Go deeper on risk", Description: "List the three largest risks"},
			{Option: "Compare vendors", Description: "Score two vendors on cost"},
		}
	}

	var guidance *string
	if g, ok := body["user_guidance"].(string); ok {
		guidance = &g
	}
	s.Iterations = append(s.Iterations, fakeIteration{
		IterationNumber: n,
		Messages:        msgs,
		Summary:         summary,
		UserGuidance:    guidance,
	})
	s.UpdatedAt = now()
	writeJSON(w, http.StatusOK, s)
}

func (f *FakeBackend) handlePricing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pricing": []map[string]any{
			{"provider": "OpenAI", "model": "GPT-4 Turbo", "model_id": "gpt-4-turbo", "input_per_1m": 10.0, "output_per_1m": 30.0},
			{"provider": "Anthropic", "model": "Claude 3 Haiku", "model_id": "claude-3-haiku", "input_per_1m": 0.25, "output_per_1m": 1.25},
		},
		"note": "Prices are approximate and may vary.",
	})
}
