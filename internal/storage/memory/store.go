// Package memory provides a process-local credential store.
package memory

import (
	"context"
	"sync"

	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/core/ports"
)

// Store is an in-memory implementation of ports.CredentialStore
type Store struct {
	mu    sync.RWMutex
	creds domain.Credentials
}

var _ ports.CredentialStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{creds: make(domain.Credentials)}
}

func (s *Store) Load(ctx context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(domain.Credentials, len(s.creds))
	for p, k := range s.creds {
		out[p] = k
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = creds.Filtered()
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = make(domain.Credentials)
	return nil
}

func (s *Store) Close() error {
	return nil
}
