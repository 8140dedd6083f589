package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/dbx"
)

// SQLiteStore keeps metadata entries in the client's sqlite database.
type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns nil for a key that was never set.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("metadata %q: read: %w", key, err)
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value); err != nil {
		return fmt.Errorf("metadata %q: write: %w", key, err)
	}
	return nil
}

// GetOrSet returns the stored value for key. When there is none it stores
// the output of gen. If two callers race, both get the value that landed
// first.
func (s *SQLiteStore) GetOrSet(ctx context.Context, key string, gen func() ([]byte, error)) ([]byte, error) {
	v, err := s.Get(ctx, key)
	if err != nil || len(v) > 0 {
		return v, err
	}

	fresh, err := gen()
	if err != nil {
		return nil, fmt.Errorf("metadata %q: generate: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		key, fresh); err != nil {
		return nil, fmt.Errorf("metadata %q: write: %w", key, err)
	}
	return s.Get(ctx, key)
}

// Delete succeeds for keys that do not exist.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("metadata %q: delete: %w", key, err)
	}
	return nil
}
