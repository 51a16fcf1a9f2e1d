// Package registry lists and deletes the sessions known to the backend.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/core/ports"
)

// ConfirmFunc asks the user to approve deleting item.
type ConfirmFunc func(item domain.SessionListItem) (bool, error)

// Registry mirrors the backend's session list. It never edits the list
// locally; every change is followed by a fresh listing.
type Registry struct {
	api    ports.SessionAPI
	logger *slog.Logger

	mu    sync.Mutex
	items []domain.SessionListItem
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a Registry.
func New(api ports.SessionAPI, opts ...Option) *Registry {
	r := &Registry{api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List fetches the session summaries, in backend order.
func (r *Registry) List(ctx context.Context) ([]domain.SessionListItem, error) {
	items, err := r.api.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.items = append([]domain.SessionListItem(nil), items...)
	r.mu.Unlock()

	r.logger.Debug("sessions listed", slog.Int("count", len(items)))
	return items, nil
}

// Items returns the result of the last successful List.
func (r *Registry) Items() []domain.SessionListItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SessionListItem(nil), r.items...)
}

// Find looks id up in the last listing.
func (r *Registry) Find(id string) (domain.SessionListItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id {
			return it, true
		}
	}
	return domain.SessionListItem{}, false
}

// Delete removes a session after confirm approves it, then re-lists.
// The listing is refreshed whether or not the delete succeeded.
func (r *Registry) Delete(ctx context.Context, id string, confirm ConfirmFunc) ([]domain.SessionListItem, error) {
	if confirm == nil {
		return nil, domain.ErrValidation("delete requires confirmation").WithCode(domain.CodeNotConfirmed)
	}

	item, ok := r.Find(id)
	if !ok {
		item = domain.SessionListItem{ID: id}
	}
	approved, err := confirm(item)
	if err != nil {
		return nil, fmt.Errorf("confirm delete: %w", err)
	}
	if !approved {
		return nil, domain.ErrValidation(fmt.Sprintf("deletion of %s not confirmed", id)).WithCode(domain.CodeNotConfirmed)
	}

	delErr := r.api.DeleteSession(ctx, id)
	if delErr != nil {
		r.logger.Error("session delete failed", slog.String("session_id", id), slog.String("error", delErr.Error()))
	} else {
		r.logger.Info("session deleted", slog.String("session_id", id))
	}

	items, listErr := r.List(ctx)
	if delErr != nil {
		if listErr != nil {
			return nil, errors.Join(delErr, listErr)
		}
		return items, delErr
	}
	return items, listErr
}
