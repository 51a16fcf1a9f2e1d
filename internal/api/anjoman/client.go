package anjoman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

const (
	defaultBaseURL = "http://localhost:8000"
	userAgent      = "anjoman-cli/1.0"
	tracerName     = "github.com/soheil-star01/anjoman/internal/api/anjoman"
)

// Operation names. They key the fallback messages in domain.UserMessage.
const (
	opPropose  = "propose agents"
	opCreate   = "create session"
	opList     = "list sessions"
	opGet      = "get session"
	opDelete   = "delete session"
	opIterate  = "iterate session"
	opComplete = "complete session"
	opPricing  = "model pricing"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each request. Zero means no client-side bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the deliberation backend. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient creates a new backend client. By default requests go through
// an OpenTelemetry-instrumented transport.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ProposeAgents implements ports.SessionAPI.
func (c *Client) ProposeAgents(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error) {
	body := ProposeRequest{
		Issue:           req.Issue,
		Budget:          req.Budget,
		AgentCount:      req.AgentCount,
		ModelPreference: string(req.Preference),
		APIKeys:         APIKeys(req.Credentials),
	}
	var resp ProposalResponse
	if err := c.do(ctx, opPropose, http.MethodPost, "/sessions/propose", body, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// CreateSession implements ports.SessionAPI.
func (c *Client) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error) {
	body := CreateSessionRequest{
		Issue:           req.Issue,
		Budget:          req.Budget,
		SuggestedAgents: FromDomainAgents(req.Agents),
		APIKeys:         APIKeys(req.Credentials),
	}
	var resp Session
	if err := c.do(ctx, opCreate, http.MethodPost, "/sessions/create", body, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// ListSessions implements ports.SessionAPI.
func (c *Client) ListSessions(ctx context.Context) ([]domain.SessionListItem, error) {
	var resp []SessionListItem
	if err := c.do(ctx, opList, http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.SessionListItem, len(resp))
	for i, it := range resp {
		out[i] = it.ToDomain()
	}
	return out, nil
}

// GetSession implements ports.SessionAPI.
func (c *Client) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	path, err := sessionPath(id, "")
	if err != nil {
		return nil, err
	}
	var resp Session
	if err := c.do(ctx, opGet, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// DeleteSession implements ports.SessionAPI.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	path, err := sessionPath(id, "")
	if err != nil {
		return err
	}
	return c.do(ctx, opDelete, http.MethodDelete, path, nil, nil)
}

// IterateSession implements ports.SessionAPI.
func (c *Client) IterateSession(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error) {
	path, err := sessionPath(id, "/iterate")
	if err != nil {
		return nil, err
	}
	body := IterateRequest{
		SessionID:        id,
		UserGuidance:     req.Guidance,
		AcceptSuggestion: req.AcceptSuggestion,
		APIKeys:          APIKeys(req.Credentials),
	}
	var resp Session
	if err := c.do(ctx, opIterate, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// CompleteSession implements ports.SessionAPI.
func (c *Client) CompleteSession(ctx context.Context, id string) error {
	path, err := sessionPath(id, "/complete")
	if err != nil {
		return err
	}
	return c.do(ctx, opComplete, http.MethodPost, path, nil, nil)
}

// ModelPricing implements ports.PricingAPI.
func (c *Client) ModelPricing(ctx context.Context) (*domain.PriceList, error) {
	var resp PricingResponse
	if err := c.do(ctx, opPricing, http.MethodGet, "/models/pricing", nil, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

func sessionPath(id, suffix string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", domain.ErrValidation("session id must not be empty").WithParam("session_id")
	}
	return "/sessions/" + url.PathEscape(id) + suffix, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "anjoman "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	requestID := c.setHeaders(httpReq, in != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("backend unreachable",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return domain.ErrRequest(op, 0, "").WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrRequest(op, 0, "").WithCause(fmt.Errorf("failed to read response: %w", err))
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug("backend request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.ErrRequest(op, resp.StatusCode, ParseErrorDetail(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.NewError(domain.KindRequest, "").
			WithCode(domain.CodeServer).
			WithStatusCode(resp.StatusCode).
			WithOp(op).
			WithCause(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) string {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	id := uuid.NewString()
	req.Header.Set("X-Request-ID", id)
	return id
}
