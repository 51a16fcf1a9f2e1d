package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

type stubAPI struct {
	mu    sync.Mutex
	calls map[string]int

	ProposeAgentsFunc   func(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error)
	CreateSessionFunc   func(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error)
	ListSessionsFunc    func(ctx context.Context) ([]domain.SessionListItem, error)
	GetSessionFunc      func(ctx context.Context, id string) (*domain.Session, error)
	DeleteSessionFunc   func(ctx context.Context, id string) error
	IterateSessionFunc  func(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error)
	CompleteSessionFunc func(ctx context.Context, id string) error
}

func (s *stubAPI) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

func (s *stubAPI) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubAPI) ProposeAgents(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
	s.record("propose")
	return s.ProposeAgentsFunc(ctx, req)
}

func (s *stubAPI) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	s.record("create")
	return s.CreateSessionFunc(ctx, req)
}

func (s *stubAPI) ListSessions(ctx context.Context) ([]domain.SessionListItem, error) {
	s.record("list")
	return s.ListSessionsFunc(ctx)
}

func (s *stubAPI) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.record("get")
	return s.GetSessionFunc(ctx, id)
}

func (s *stubAPI) DeleteSession(ctx context.Context, id string) error {
	s.record("delete")
	return s.DeleteSessionFunc(ctx, id)
}

func (s *stubAPI) IterateSession(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
	s.record("iterate")
	return s.IterateSessionFunc(ctx, id, req)
}

func (s *stubAPI) CompleteSession(ctx context.Context, id string) error {
	s.record("complete")
	return s.CompleteSessionFunc(ctx, id)
}

var testCreds = domain.Credentials{domain.ProviderOpenAI: "sk-test"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func proposal() *domain.Proposal {
	return &domain.Proposal{
		Agents: []domain.Agent{
			{ID: "ray-1", Role: "Analyst", Model: "gpt-4o-mini"},
			{ID: "ray-2", Role: "Critic", Model: "gpt-4o-mini"},
		},
		Rationale: "two views",
		Models:    []domain.ModelInfo{{ModelID: "gpt-4o-mini", Provider: "openai"}, {ModelID: "gpt-4o", Provider: "openai"}},
	}
}

func newSession(req domain.CreateSessionRequest) *domain.Session {
	return &domain.Session{
		ID:     "anj-test",
		Issue:  req.Issue,
		Agents: req.Agents,
		Budget: domain.Budget{TotalBudget: req.Budget, Remaining: req.Budget, WarningThreshold: 0.8},
		Status: domain.SessionActive,
	}
}

// happyAPI simulates a backend that charges cost per round.
func happyAPI(cost float64) *stubAPI {
	var current *domain.Session
	return &stubAPI{
		ProposeAgentsFunc: func(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
			return proposal(), nil
		},
		CreateSessionFunc: func(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
			current = newSession(req)
			return current.Clone(), nil
		},
		IterateSessionFunc: func(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
			it := domain.Iteration{Number: len(current.Iterations) + 1}
			if req.Guidance != nil {
				it.Guidance = *req.Guidance
			}
			current.Iterations = append(current.Iterations, it)
			current.Budget.Used += cost
			current.Budget.Remaining = current.Budget.TotalBudget - current.Budget.Used
			return current.Clone(), nil
		},
		CompleteSessionFunc: func(ctx context.Context, id string) error {
			return nil
		},
		GetSessionFunc: func(ctx context.Context, id string) (*domain.Session, error) {
			return current.Clone(), nil
		},
	}
}

func activeController(t *testing.T, api *stubAPI) *Controller {
	t.Helper()
	c := New(api, WithLogger(quietLogger()))
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}
	if err := c.ConfirmProposal(context.Background()); err != nil {
		t.Fatalf("ConfirmProposal() error = %v", err)
	}
	return c
}

func TestController_Scenario(t *testing.T) {
	ctx := context.Background()
	api := happyAPI(0.1)
	c := New(api, WithLogger(quietLogger()))

	if err := c.RequestProposal(ctx, domain.ProposeRequest{Issue: "X", Budget: 5.00, Credentials: testCreds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}
	if c.State() != StateReviewingProposal {
		t.Fatalf("State() = %v, want reviewing_proposal", c.State())
	}
	if c.Review() == nil || c.Review().Len() < 1 {
		t.Fatal("Review() has no agents")
	}

	if err := c.ConfirmProposal(ctx); err != nil {
		t.Fatalf("ConfirmProposal() error = %v", err)
	}
	s := c.Session()
	if c.State() != StateActive || s.Status != domain.SessionActive {
		t.Fatalf("state = %v, status = %v, want active", c.State(), s.Status)
	}
	if len(s.Iterations) != 0 || s.Budget.Used != 0 {
		t.Fatalf("iterations = %d, used = %v, want 0, 0", len(s.Iterations), s.Budget.Used)
	}
	if c.Review() != nil {
		t.Error("Review() != nil after confirm")
	}

	c.SetGuidance("focus on risk")
	if err := c.RequestIteration(ctx, IterateInput{Guidance: c.Guidance(), AcceptSuggestion: true}); err != nil {
		t.Fatalf("RequestIteration() error = %v", err)
	}
	s = c.Session()
	if len(s.Iterations) != 1 || s.Iterations[0].Number != 1 || s.Iterations[0].Guidance != "focus on risk" {
		t.Fatalf("iterations = %+v", s.Iterations)
	}
	if c.Guidance() != "" {
		t.Errorf("Guidance() = %q after iteration, want cleared", c.Guidance())
	}

	if err := c.RequestComplete(ctx); err != nil {
		t.Fatalf("RequestComplete() error = %v", err)
	}
	if c.State() != StateCompleted || c.Session().Status != domain.SessionCompleted {
		t.Errorf("state = %v, status = %v, want completed", c.State(), c.Session().Status)
	}
	if api.count("get") != 0 {
		t.Errorf("complete read the session back %d times, want 0", api.count("get"))
	}
}

func TestController_RequestProposalValidation(t *testing.T) {
	zero := 0
	tests := []struct {
		name     string
		req      domain.ProposeRequest
		wantCode domain.ErrorCode
	}{
		{"no credentials", domain.ProposeRequest{Issue: "X", Budget: 5}, domain.CodeMissingCredential},
		{"blank credentials", domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: domain.Credentials{domain.ProviderOpenAI: "  "}}, domain.CodeMissingCredential},
		{"empty issue", domain.ProposeRequest{Issue: " ", Budget: 5, Credentials: testCreds}, domain.CodeEmptyIssue},
		{"zero budget", domain.ProposeRequest{Issue: "X", Budget: 0, Credentials: testCreds}, domain.CodeInvalidBudget},
		{"zero agents", domain.ProposeRequest{Issue: "X", Budget: 5, AgentCount: &zero, Credentials: testCreds}, domain.CodeInvalidAgentCount},
		{"bad preference", domain.ProposeRequest{Issue: "X", Budget: 5, Preference: "cheapest", Credentials: testCreds}, domain.CodeInvalidPreference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := happyAPI(0)
			c := New(api, WithLogger(quietLogger()))
			err := c.RequestProposal(context.Background(), tt.req)

			var de *domain.Error
			if !errors.As(err, &de) || de.Kind != domain.KindValidation || de.Code != tt.wantCode {
				t.Fatalf("error = %v, want validation/%s", err, tt.wantCode)
			}
			if api.count("propose") != 0 {
				t.Error("network call issued for invalid request")
			}
			if c.State() != StateNoSession {
				t.Errorf("State() = %v, want no_session", c.State())
			}
		})
	}
}

func TestController_RequestProposalForwardsNormalizedRequest(t *testing.T) {
	var got domain.ProposeRequest
	api := happyAPI(0)
	api.ProposeAgentsFunc = func(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
		got = req
		return proposal(), nil
	}
	c := New(api, WithLogger(quietLogger()))
	creds := domain.Credentials{domain.ProviderAnthropic: " sk-ant ", domain.ProviderMistral: ""}
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "  X  ", Budget: 2, Credentials: creds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}
	if got.Issue != "X" || got.Preference != domain.PreferenceBalanced || got.AgentCount != nil {
		t.Errorf("forwarded request = %+v", got)
	}
	if len(got.Credentials) != 1 || got.Credentials[domain.ProviderAnthropic] != "sk-ant" {
		t.Errorf("forwarded credentials = %v", got.Credentials)
	}
}

func TestController_ProposalFailureIsError(t *testing.T) {
	api := happyAPI(0)
	api.ProposeAgentsFunc = func(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
		return nil, domain.ErrRequest("propose agents", 500, "")
	}
	c := New(api, WithLogger(quietLogger()))
	err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds})
	if !domain.IsRequest(err) {
		t.Fatalf("error = %v, want request error", err)
	}
	if c.State() != StateError {
		t.Errorf("State() = %v, want error", c.State())
	}
	if c.Err() == nil {
		t.Error("Err() = nil, want surfaced error")
	}
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second RequestProposal() error = %v, want ErrInvalidTransition", err)
	}
}

func TestController_EmptyProposalIsError(t *testing.T) {
	api := happyAPI(0)
	api.ProposeAgentsFunc = func(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
		return &domain.Proposal{}, nil
	}
	c := New(api, WithLogger(quietLogger()))
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); err == nil {
		t.Fatal("RequestProposal() error = nil, want error")
	}
	if c.State() != StateError {
		t.Errorf("State() = %v, want error", c.State())
	}
}

func TestController_CancelProposal(t *testing.T) {
	api := happyAPI(0)
	c := New(api, WithLogger(quietLogger()))
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}
	if err := c.Review().SetRole(0, "Edited"); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	if err := c.CancelProposal(); err != nil {
		t.Fatalf("CancelProposal() error = %v", err)
	}
	if c.State() != StateNoSession {
		t.Errorf("State() = %v, want no_session", c.State())
	}
	if api.count("create") != 0 {
		t.Error("cancel issued a backend call")
	}
	if err := c.CancelProposal(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("CancelProposal() twice error = %v, want ErrInvalidTransition", err)
	}
}

func TestController_ConfirmFailureKeepsEdits(t *testing.T) {
	api := happyAPI(0)
	fail := true
	create := api.CreateSessionFunc
	var sent []domain.Agent
	api.CreateSessionFunc = func(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
		sent = req.Agents
		if fail {
			return nil, domain.ErrRequest("create session", 0, "")
		}
		return create(ctx, req)
	}

	c := New(api, WithLogger(quietLogger()))
	ctx := context.Background()
	if err := c.RequestProposal(ctx, domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}
	if err := c.Review().SetModel(1, "gpt-4o"); err != nil {
		t.Fatalf("SetModel() error = %v", err)
	}

	if err := c.ConfirmProposal(ctx); err == nil {
		t.Fatal("ConfirmProposal() error = nil, want failure")
	}
	if c.State() != StateReviewingProposal {
		t.Fatalf("State() = %v, want reviewing_proposal", c.State())
	}
	if got := c.Review().Agents()[1].Model; got != "gpt-4o" {
		t.Errorf("edit lost after failed confirm: model = %q", got)
	}

	fail = false
	if err := c.ConfirmProposal(ctx); err != nil {
		t.Fatalf("retry ConfirmProposal() error = %v", err)
	}
	if sent[1].Model != "gpt-4o" {
		t.Errorf("create sent model %q, want edited gpt-4o", sent[1].Model)
	}
	if got := c.Session().Agents[1].Model; got != "gpt-4o" {
		t.Errorf("session agent model = %q, want gpt-4o", got)
	}
}

func TestController_IterationFailureKeepsSession(t *testing.T) {
	api := happyAPI(0.5)
	c := activeController(t, api)
	ctx := context.Background()

	if err := c.RequestIteration(ctx, IterateInput{}); err != nil {
		t.Fatalf("RequestIteration() error = %v", err)
	}

	api.IterateSessionFunc = func(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
		return nil, domain.ErrRequest("iterate session", 502, "upstream timeout")
	}
	c.SetGuidance("keep me")
	err := c.RequestIteration(ctx, IterateInput{Guidance: c.Guidance()})
	if domain.UserMessage(err) != "upstream timeout" {
		t.Fatalf("UserMessage() = %q, want server detail", domain.UserMessage(err))
	}
	s := c.Session()
	if len(s.Iterations) != 1 || s.Status != domain.SessionActive || c.State() != StateActive {
		t.Errorf("after failure: iterations = %d, status = %v, state = %v", len(s.Iterations), s.Status, c.State())
	}
	if c.Guidance() != "keep me" {
		t.Errorf("Guidance() = %q, want kept for retry", c.Guidance())
	}
}

func TestController_IterationOutOfSync(t *testing.T) {
	tests := []struct {
		name    string
		respond func(id string) *domain.Session
	}{
		{"no new iteration", func(id string) *domain.Session {
			return &domain.Session{ID: id, Status: domain.SessionActive, Budget: domain.Budget{TotalBudget: 5}}
		}},
		{"two new iterations", func(id string) *domain.Session {
			return &domain.Session{ID: id, Status: domain.SessionActive, Budget: domain.Budget{TotalBudget: 5},
				Iterations: []domain.Iteration{{Number: 1}, {Number: 2}}}
		}},
		{"bad numbering", func(id string) *domain.Session {
			return &domain.Session{ID: id, Status: domain.SessionActive, Budget: domain.Budget{TotalBudget: 5},
				Iterations: []domain.Iteration{{Number: 2}}}
		}},
		{"other session", func(id string) *domain.Session {
			return &domain.Session{ID: "anj-other", Status: domain.SessionActive, Budget: domain.Budget{TotalBudget: 5},
				Iterations: []domain.Iteration{{Number: 1}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := happyAPI(0)
			c := activeController(t, api)
			api.IterateSessionFunc = func(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
				return tt.respond(id), nil
			}
			if err := c.RequestIteration(context.Background(), IterateInput{}); !errors.Is(err, domain.ErrOutOfSync) {
				t.Fatalf("RequestIteration() error = %v, want ErrOutOfSync", err)
			}
			if n := len(c.Session().Iterations); n != 0 {
				t.Errorf("iterations = %d, want 0", n)
			}
		})
	}
}

func TestController_BudgetExceededRejectedLocally(t *testing.T) {
	api := happyAPI(5)
	c := activeController(t, api)
	ctx := context.Background()

	if err := c.RequestIteration(ctx, IterateInput{}); err != nil {
		t.Fatalf("RequestIteration() error = %v", err)
	}
	calls := api.count("iterate")

	err := c.RequestIteration(ctx, IterateInput{Guidance: "more"})
	if !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("RequestIteration() error = %v, want ErrBudgetExceeded", err)
	}
	if api.count("iterate") != calls {
		t.Error("network call issued with exhausted budget")
	}
	if c.CanIterate() == nil {
		t.Error("CanIterate() = nil, want error")
	}
	st, err := c.BudgetStatus()
	if err != nil || !st.IsExceeded {
		t.Errorf("BudgetStatus() = %+v, %v", st, err)
	}
}

func TestController_PausedSessionNotIterable(t *testing.T) {
	api := happyAPI(0)
	api.GetSessionFunc = func(ctx context.Context, id string) (*domain.Session, error) {
		return &domain.Session{ID: id, Status: domain.SessionPaused, Budget: domain.Budget{TotalBudget: 5, Used: 1}}, nil
	}
	c := New(api, WithLogger(quietLogger()))
	if err := c.Open(context.Background(), "anj-paused", testCreds); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("State() = %v, want active", c.State())
	}
	if err := c.RequestIteration(context.Background(), IterateInput{}); !errors.Is(err, domain.ErrSessionInactive) {
		t.Errorf("RequestIteration() error = %v, want ErrSessionInactive", err)
	}
	if api.count("iterate") != 0 {
		t.Error("network call issued for paused session")
	}
}

func TestController_CompleteFailureStaysActive(t *testing.T) {
	api := happyAPI(0)
	c := activeController(t, api)
	api.CompleteSessionFunc = func(ctx context.Context, id string) error {
		return domain.ErrRequest("complete session", 500, "")
	}
	err := c.RequestComplete(context.Background())
	if domain.UserMessage(err) != "Failed to complete session" {
		t.Errorf("UserMessage() = %q", domain.UserMessage(err))
	}
	if c.State() != StateActive || c.Session().Status != domain.SessionActive {
		t.Errorf("state = %v, status = %v, want active", c.State(), c.Session().Status)
	}
}

func TestController_NoResurrection(t *testing.T) {
	api := happyAPI(0)
	c := activeController(t, api)
	ctx := context.Background()
	if err := c.RequestComplete(ctx); err != nil {
		t.Fatalf("RequestComplete() error = %v", err)
	}

	if err := c.RequestIteration(ctx, IterateInput{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("RequestIteration() error = %v, want ErrInvalidTransition", err)
	}
	if err := c.RequestComplete(ctx); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("RequestComplete() error = %v, want ErrInvalidTransition", err)
	}

	// The stub still reports the session as active.
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if c.State() != StateCompleted || c.Session().Status != domain.SessionCompleted {
		t.Errorf("state = %v, status = %v after Refresh, want completed", c.State(), c.Session().Status)
	}
}

func TestController_Open(t *testing.T) {
	tests := []struct {
		status domain.SessionStatus
		want   State
	}{
		{domain.SessionActive, StateActive},
		{domain.SessionCompleted, StateCompleted},
		{domain.SessionError, StateError},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			api := happyAPI(0)
			api.GetSessionFunc = func(ctx context.Context, id string) (*domain.Session, error) {
				return &domain.Session{ID: id, Status: tt.status, Budget: domain.Budget{TotalBudget: 5}}, nil
			}
			c := New(api, WithLogger(quietLogger()))
			if err := c.Open(context.Background(), "anj-1", testCreds); err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if c.State() != tt.want {
				t.Errorf("State() = %v, want %v", c.State(), tt.want)
			}
		})
	}

	t.Run("not found", func(t *testing.T) {
		api := happyAPI(0)
		api.GetSessionFunc = func(ctx context.Context, id string) (*domain.Session, error) {
			return nil, domain.ErrRequest("get session", 404, "Session not found")
		}
		c := New(api, WithLogger(quietLogger()))
		if err := c.Open(context.Background(), "anj-missing", testCreds); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Open() error = %v, want ErrNotFound", err)
		}
		if c.State() != StateNoSession {
			t.Errorf("State() = %v, want no_session", c.State())
		}
	})
}

func TestController_RefreshRejectsLostIterations(t *testing.T) {
	api := happyAPI(0)
	c := activeController(t, api)
	if err := c.RequestIteration(context.Background(), IterateInput{}); err != nil {
		t.Fatalf("RequestIteration() error = %v", err)
	}
	api.GetSessionFunc = func(ctx context.Context, id string) (*domain.Session, error) {
		return &domain.Session{ID: id, Status: domain.SessionActive, Budget: domain.Budget{TotalBudget: 5}}, nil
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, domain.ErrOutOfSync) {
		t.Errorf("Refresh() error = %v, want ErrOutOfSync", err)
	}
	if len(c.Session().Iterations) != 1 {
		t.Error("Refresh() replaced the session after rejecting it")
	}
}

func TestController_SingleRequestInFlight(t *testing.T) {
	api := happyAPI(0)
	c := activeController(t, api)

	started := make(chan struct{})
	release := make(chan struct{})
	iterate := api.IterateSessionFunc
	api.IterateSessionFunc = func(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
		close(started)
		<-release
		return iterate(ctx, id, req)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.RequestIteration(context.Background(), IterateInput{})
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("iteration never started")
	}

	if !c.Pending() {
		t.Error("Pending() = false while request in flight")
	}
	if err := c.RequestIteration(context.Background(), IterateInput{}); !errors.Is(err, domain.ErrRequestPending) {
		t.Errorf("concurrent RequestIteration() error = %v, want ErrRequestPending", err)
	}
	if err := c.RequestComplete(context.Background()); !errors.Is(err, domain.ErrRequestPending) {
		t.Errorf("concurrent RequestComplete() error = %v, want ErrRequestPending", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("RequestIteration() error = %v", err)
	}
	if n := len(c.Session().Iterations); n != 1 {
		t.Errorf("iterations = %d, want 1", n)
	}
	if api.count("iterate") != 1 {
		t.Errorf("iterate calls = %d, want 1", api.count("iterate"))
	}
}

func TestController_ReviewHiddenWhileConfirming(t *testing.T) {
	api := happyAPI(0)
	c := New(api, WithLogger(quietLogger()))
	if err := c.RequestProposal(context.Background(), domain.ProposeRequest{Issue: "X", Budget: 5, Credentials: testCreds}); err != nil {
		t.Fatalf("RequestProposal() error = %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	create := api.CreateSessionFunc
	api.CreateSessionFunc = func(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
		close(started)
		<-release
		return nil, domain.ErrRequest("create session", 500, "")
	}

	done := make(chan error, 1)
	go func() {
		done <- c.ConfirmProposal(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("confirm never started")
	}

	if rv := c.Review(); rv != nil {
		t.Error("Review() returned an editable roster while confirm was in flight")
	}

	close(release)
	if err := <-done; err == nil {
		t.Fatal("ConfirmProposal() error = nil, want request error")
	}

	rv := c.Review()
	if rv == nil {
		t.Fatal("Review() = nil after failed confirm, want the review back")
	}
	if err := rv.SetRole(0, "Skeptic"); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}

	api.CreateSessionFunc = create
	if err := c.ConfirmProposal(context.Background()); err != nil {
		t.Fatalf("retry ConfirmProposal() error = %v", err)
	}
	if got := c.Session().Agents[0].Role; got != "Skeptic" {
		t.Errorf("created role = %q, want Skeptic", got)
	}
}

func TestState_String(t *testing.T) {
	if StateReviewingProposal.String() != "reviewing_proposal" {
		t.Errorf("String() = %q", StateReviewingProposal.String())
	}
	if !StateError.Terminal() || StateActive.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
