package conflictlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append stores e and fills in its ID. A zero ResolvedAt is set to now.
func (r *SQLiteRepository) Append(ctx context.Context, e *Entry) error {
	if e.ResolvedAt.IsZero() {
		e.ResolvedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conflict_log (identity_id, kind, choice, fields, resolved_at) VALUES (?, ?, ?, ?, ?)
	`, e.IdentityID, e.Kind, e.Choice, strings.Join(e.Fields, ","), e.ResolvedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to append conflict log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get conflict log id: %w", err)
	}
	e.ID = id
	return nil
}

func (r *SQLiteRepository) ListByIdentity(ctx context.Context, identityID string) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity_id, kind, choice, fields, resolved_at
		FROM conflict_log WHERE identity_id = ? ORDER BY id DESC
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict log: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		var (
			e      Entry
			fields string
			ts     int64
		)
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.Kind, &e.Choice, &fields, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan conflict log row: %w", err)
		}
		if fields != "" {
			e.Fields = strings.Split(fields, ",")
		}
		e.ResolvedAt = time.UnixMilli(ts).UTC()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflict log rows: %w", err)
	}
	return result, nil
}
