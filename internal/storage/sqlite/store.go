// Package sqlite stores provider credentials in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/core/ports"
)

// Store is a SQLite implementation of ports.CredentialStore
type Store struct {
	db *sql.DB
}

var _ ports.CredentialStore = (*Store)(nil)

// New opens (creating if needed) the settings database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			provider TEXT PRIMARY KEY,
			api_key TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Load returns every stored key.
func (s *Store) Load(ctx context.Context) (domain.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, api_key FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	creds := make(domain.Credentials)
	for rows.Next() {
		var provider, key string
		if err := rows.Scan(&provider, &key); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds[domain.Provider(provider)] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return creds, nil
}

// Save replaces the stored keys with the trimmed, non-empty entries of creds.
func (s *Store) Save(ctx context.Context, creds domain.Credentials) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	now := time.Now()
	for provider, key := range creds.Filtered() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (provider, api_key, updated_at) VALUES (?, ?, ?)`,
			string(provider), key, now,
		); err != nil {
			return fmt.Errorf("failed to store %s credential: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}
	return nil
}

// Clear removes every stored key.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
