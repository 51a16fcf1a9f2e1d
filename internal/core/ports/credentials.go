package ports

import (
	"context"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// CredentialStore is the local persisted settings store for provider keys.
type CredentialStore interface {
	// Load returns all stored keys.
	Load(ctx context.Context) (domain.Credentials, error)

	// Save replaces the stored keys. Blank entries are dropped and values are trimmed.
	Save(ctx context.Context, creds domain.Credentials) error

	// Clear removes every stored key.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}
