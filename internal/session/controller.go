// Package session implements the client-side lifecycle of a deliberation
// session: propose, review, confirm, iterate, complete.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/soheil-star01/anjoman/internal/budget"
	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/core/ports"
	"github.com/soheil-star01/anjoman/internal/review"
)

// Controller drives one session against the backend. At most one backend
// request is in flight at a time; a second request while one is pending
// fails with domain.ErrRequestPending.
type Controller struct {
	api       ports.SessionAPI
	logger    *slog.Logger
	threshold float64

	mu       sync.Mutex
	state    State
	pending  bool
	issue    string
	budget   float64
	creds    domain.Credentials
	review   *review.Controller
	session  *domain.Session
	guidance string
	lastErr  error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithWarningThreshold sets the threshold used when the backend omits one.
func WithWarningThreshold(t float64) Option {
	return func(c *Controller) {
		c.threshold = t
	}
}

// New creates a controller in the NoSession state.
func New(api ports.SessionAPI, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		logger:    slog.Default(),
		threshold: budget.DefaultWarningThreshold,
		state:     StateNoSession,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether a backend request is in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Session returns a copy of the mirrored session, or nil.
func (c *Controller) Session() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Review returns the review in progress. It is nil outside
// ReviewingProposal and while the confirm request is in flight, since the
// roster has already been sent.
func (c *Controller) Review() *review.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewingProposal || c.pending {
		return nil
	}
	return c.review
}

// Err returns the last error surfaced by a backend call.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Guidance returns the steering text staged for the next iteration.
func (c *Controller) Guidance() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guidance
}

// SetGuidance stages text for the next iteration. It never submits.
func (c *Controller) SetGuidance(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guidance = text
}

// BudgetStatus evaluates the mirrored budget.
func (c *Controller) BudgetStatus() (budget.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return budget.Status{}, domain.ErrState("no session").WithCode(domain.CodeInvalidTransition)
	}
	return budget.EvaluateBudgetWith(c.session.Budget, c.threshold)
}

// CanIterate returns nil when a new iteration may be requested.
func (c *Controller) CanIterate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkIterate()
}

func (c *Controller) checkIterate() error {
	if c.state != StateActive {
		return invalidTransition("request iteration", c.state)
	}
	if c.session.Status != domain.SessionActive {
		return domain.ErrValidation(fmt.Sprintf("session is %s", c.session.Status)).WithCode(domain.CodeSessionInactive)
	}
	st, err := budget.EvaluateBudgetWith(c.session.Budget, c.threshold)
	if err != nil {
		return err
	}
	if st.IsExceeded {
		return domain.ErrValidation(fmt.Sprintf("budget exceeded: $%.2f / $%.2f",
			c.session.Budget.Used, c.session.Budget.TotalBudget)).WithCode(domain.CodeBudgetExceeded)
	}
	return nil
}

// begin must be called with mu held. It marks a request in flight.
func (c *Controller) begin(op string, allowed ...State) error {
	if c.pending {
		return domain.ErrState(op + ": a request is already in flight").WithCode(domain.CodeRequestPending)
	}
	if !slices.Contains(allowed, c.state) {
		return invalidTransition(op, c.state)
	}
	return nil
}

func invalidTransition(op string, from State) *domain.Error {
	return domain.ErrState(fmt.Sprintf("cannot %s in state %s", op, from)).WithCode(domain.CodeInvalidTransition)
}

// RequestProposal asks the backend for a roster. It fails without a network
// call when no credential is present or the inputs are malformed.
func (c *Controller) RequestProposal(ctx context.Context, req domain.ProposeRequest) error {
	c.mu.Lock()
	if err := c.begin("request proposal", StateNoSession); err != nil {
		c.mu.Unlock()
		return err
	}
	req, err := normalizeProposal(req)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateProposing
	c.pending = true
	c.mu.Unlock()

	c.logger.Info("requesting agent proposal",
		slog.Float64("budget", req.Budget),
		slog.Any("providers", req.Credentials.Providers()))
	p, err := c.api.ProposeAgents(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err == nil && len(p.Agents) == 0 {
		err = domain.ErrValidation("backend proposed no agents").WithCode(domain.CodeOutOfSync)
	}
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.logger.Error("agent proposal failed", slog.String("error", err.Error()))
		return err
	}

	c.issue = req.Issue
	c.budget = req.Budget
	c.creds = req.Credentials
	c.review = review.New(p)
	c.state = StateReviewingProposal
	c.lastErr = nil
	c.logger.Info("agent proposal received", slog.Int("agents", len(p.Agents)))
	return nil
}

func normalizeProposal(req domain.ProposeRequest) (domain.ProposeRequest, error) {
	req.Credentials = req.Credentials.Filtered()
	if len(req.Credentials) == 0 {
		return req, domain.ErrValidation("add at least one API key").
			WithCode(domain.CodeMissingCredential).
			WithParam("credentials")
	}
	req.Issue = strings.TrimSpace(req.Issue)
	if req.Issue == "" {
		return req, domain.ErrValidation("issue must not be empty").
			WithCode(domain.CodeEmptyIssue).
			WithParam("issue")
	}
	if err := budget.ValidateTotal(req.Budget); err != nil {
		return req, err
	}
	if req.AgentCount != nil && *req.AgentCount < 1 {
		return req, domain.ErrValidation(fmt.Sprintf("agent count must be at least 1, got %d", *req.AgentCount)).
			WithCode(domain.CodeInvalidAgentCount).
			WithParam("agent_count")
	}
	pref, err := domain.ParseModelPreference(string(req.Preference))
	if err != nil {
		return req, err
	}
	req.Preference = pref
	return req, nil
}

// CancelProposal discards the proposal and every edit. No backend call is made.
func (c *Controller) CancelProposal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("cancel proposal", StateReviewingProposal); err != nil {
		return err
	}
	c.review.Cancel()
	c.review = nil
	c.issue, c.budget, c.creds = "", 0, nil
	c.state = StateNoSession
	c.lastErr = nil
	c.logger.Info("agent proposal cancelled")
	return nil
}

// ConfirmProposal creates the session from the reviewed roster. On failure
// the controller stays in ReviewingProposal with every edit intact.
func (c *Controller) ConfirmProposal(ctx context.Context) error {
	c.mu.Lock()
	if err := c.begin("confirm proposal", StateReviewingProposal); err != nil {
		c.mu.Unlock()
		return err
	}
	req := domain.CreateSessionRequest{
		Issue:       c.issue,
		Budget:      c.budget,
		Agents:      c.review.Agents(),
		Credentials: c.creds,
	}
	c.pending = true
	c.mu.Unlock()

	s, err := c.api.CreateSession(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err != nil {
		c.lastErr = err
		c.logger.Error("session creation failed", slog.String("error", err.Error()))
		return err
	}
	if err := s.Validate(); err != nil {
		c.state = StateError
		c.lastErr = err
		return err
	}

	if _, err := c.review.Confirm(); err != nil {
		return err
	}
	c.review = nil
	c.session = s
	c.state = stateFor(s.Status)
	c.lastErr = nil
	c.logger.Info("session created",
		slog.String("session_id", s.ID),
		slog.Int("agents", len(s.Agents)),
		slog.Float64("budget", s.Budget.TotalBudget))
	return nil
}

// IterateInput carries the user's steering for one round.
type IterateInput struct {
	// Guidance is sent verbatim. Blank means no guidance.
	Guidance         string
	AcceptSuggestion bool
}

// RequestIteration runs one round. It is rejected without a network call
// unless the session is active and the budget is not exceeded. A failed
// round leaves the session untouched; the caller may retry.
func (c *Controller) RequestIteration(ctx context.Context, in IterateInput) error {
	c.mu.Lock()
	if err := c.begin("request iteration", StateActive); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.checkIterate(); err != nil {
		c.mu.Unlock()
		return err
	}
	id := c.session.ID
	prev := len(c.session.Iterations)
	req := domain.IterateRequest{
		AcceptSuggestion: in.AcceptSuggestion,
		Credentials:      c.creds,
	}
	if strings.TrimSpace(in.Guidance) != "" {
		g := in.Guidance
		req.Guidance = &g
	}
	c.pending = true
	c.mu.Unlock()

	c.logger.Info("requesting iteration",
		slog.String("session_id", id),
		slog.Int("iteration", prev+1),
		slog.Bool("guided", req.Guidance != nil))
	s, err := c.api.IterateSession(ctx, id, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err == nil {
		err = checkAppended(s, id, prev)
	}
	if err != nil {
		c.lastErr = err
		c.logger.Error("iteration failed", slog.String("session_id", id), slog.String("error", err.Error()))
		return err
	}

	c.session = s
	c.guidance = ""
	c.state = stateFor(s.Status)
	c.lastErr = nil
	it, _ := s.LastIteration()
	c.logger.Info("iteration completed",
		slog.String("session_id", id),
		slog.Int("iteration", it.Number),
		slog.Int("failed_messages", it.FailedMessages()),
		slog.Float64("used", s.Budget.Used))
	return nil
}

func checkAppended(s *domain.Session, id string, prev int) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.ID != id {
		return domain.ErrValidation(fmt.Sprintf("backend returned session %s, want %s", s.ID, id)).WithCode(domain.CodeOutOfSync)
	}
	if len(s.Iterations) != prev+1 {
		return domain.ErrValidation(fmt.Sprintf("backend returned %d iterations, want %d", len(s.Iterations), prev+1)).
			WithCode(domain.CodeOutOfSync)
	}
	return nil
}

// RequestComplete marks the session completed. Completion is applied
// locally without reading the server copy back.
func (c *Controller) RequestComplete(ctx context.Context) error {
	c.mu.Lock()
	if err := c.begin("complete session", StateActive); err != nil {
		c.mu.Unlock()
		return err
	}
	id := c.session.ID
	c.pending = true
	c.mu.Unlock()

	err := c.api.CompleteSession(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err != nil {
		c.lastErr = err
		c.logger.Error("session completion failed", slog.String("session_id", id), slog.String("error", err.Error()))
		return err
	}

	c.session.Status = domain.SessionCompleted
	c.state = StateCompleted
	c.lastErr = nil
	c.logger.Info("session completed", slog.String("session_id", id))
	return nil
}

// Open mirrors an existing session. creds are forwarded on later iterations.
func (c *Controller) Open(ctx context.Context, id string, creds domain.Credentials) error {
	c.mu.Lock()
	if err := c.begin("open session", StateNoSession); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = true
	c.mu.Unlock()

	s, err := c.api.GetSession(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		c.lastErr = err
		return err
	}

	c.session = s
	c.creds = creds.Filtered()
	c.state = stateFor(s.Status)
	c.lastErr = nil
	c.logger.Info("session opened",
		slog.String("session_id", s.ID),
		slog.String("status", string(s.Status)),
		slog.Int("iterations", len(s.Iterations)))
	return nil
}

// Refresh re-fetches the server copy. A Completed or Error controller keeps
// its state whatever the server reports.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if err := c.begin("refresh session", StateActive, StateCompleted, StateError); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.session == nil {
		c.mu.Unlock()
		return invalidTransition("refresh session", c.state)
	}
	id := c.session.ID
	prev := len(c.session.Iterations)
	c.pending = true
	c.mu.Unlock()

	s, err := c.api.GetSession(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err == nil {
		err = s.Validate()
	}
	if err == nil && len(s.Iterations) < prev {
		err = domain.ErrValidation(fmt.Sprintf("backend lost iterations: have %d, got %d", prev, len(s.Iterations))).
			WithCode(domain.CodeOutOfSync)
	}
	if err != nil {
		c.lastErr = err
		return err
	}

	if c.state.Terminal() {
		if s.Status == domain.SessionActive {
			s.Status = c.session.Status
		}
	} else {
		c.state = stateFor(s.Status)
	}
	c.session = s
	c.lastErr = nil
	return nil
}
