// Package ports defines the boundaries between the controllers and their collaborators.
package ports

import (
	"context"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// SessionAPI is the remote deliberation backend. Every call is a single
// request/response exchange; implementations must not retry.
type SessionAPI interface {
	// ProposeAgents asks the backend for a candidate roster.
	ProposeAgents(ctx context.Context, req domain.ProposeRequest) (*domain.Proposal, error)

	// CreateSession creates a session from a confirmed roster.
	CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.Session, error)

	// ListSessions returns lightweight summaries of the known sessions.
	ListSessions(ctx context.Context) ([]domain.SessionListItem, error)

	// GetSession fetches the full server copy of a session.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// DeleteSession removes a session. It is irreversible.
	DeleteSession(ctx context.Context, id string) error

	// IterateSession runs one round and returns the full updated session.
	IterateSession(ctx context.Context, id string, req domain.IterateRequest) (*domain.Session, error)

	// CompleteSession marks the session completed.
	CompleteSession(ctx context.Context, id string) error
}

// PricingAPI exposes the backend's approximate model price list.
type PricingAPI interface {
	ModelPricing(ctx context.Context) (*domain.PriceList, error)
}
