package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/dbx"
)

// SQLiteKeystore keeps handles in the secure_credentials table.
type SQLiteKeystore struct {
	db dbx.DBTX
}

func NewSQLiteKeystore(db dbx.DBTX) *SQLiteKeystore {
	return &SQLiteKeystore{db: db}
}

func (k *SQLiteKeystore) Put(ctx context.Context, identityID, handle string) error {
	_, err := k.db.ExecContext(ctx, `
		INSERT INTO secure_credentials (identity_id, handle, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET handle = excluded.handle, updated_at = excluded.updated_at
	`, identityID, handle, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put credential[%s]: %w", identityID, err)
	}
	return nil
}

func (k *SQLiteKeystore) Get(ctx context.Context, identityID string) (string, error) {
	var handle string
	err := k.db.QueryRowContext(ctx, `SELECT handle FROM secure_credentials WHERE identity_id = ?`, identityID).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential[%s]: %w", identityID, err)
	}
	return handle, nil
}

func (k *SQLiteKeystore) Delete(ctx context.Context, identityID string) error {
	_, err := k.db.ExecContext(ctx, `DELETE FROM secure_credentials WHERE identity_id = ?`, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete credential[%s]: %w", identityID, err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (k *SQLiteKeystore) Close() error { return nil }
