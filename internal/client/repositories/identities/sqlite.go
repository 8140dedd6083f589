package identities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/dbx"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

const selectColumns = `id, email, username, phone, first_name, last_name,
	credential_kind, credential_value, auth_method, linked_auth_methods, profile, updated_at`

// SQLiteRepository implements Repository on the client SQLite database.
type SQLiteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRepository returns a repository bound to db. db must already be
// migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	value = identity.NormalizeIdentifier(method, value)
	if value == "" {
		return nil, common.ErrorNotFound
	}

	if err := r.heal(ctx); err != nil {
		return nil, err
	}

	var where string
	switch method {
	case identity.LoginEmail:
		where = `lower(email) = lower(?)`
	case identity.LoginPhone:
		where = `phone = ?`
	default:
		where = `lower(username) = lower(?)`
	}

	query := `SELECT ` + selectColumns + ` FROM identities WHERE ` + where + ` ORDER BY seq LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by %s: %w", method, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*identity.Record, error) {
	return getByID(ctx, r.db, id)
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *identity.Record) error {
	return r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return upsert(ctx, tx, rec)
	})
}

func (r *SQLiteRepository) All(ctx context.Context) ([]*identity.Record, error) {
	if err := r.heal(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM identities ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to select identities: %w", err)
	}
	defer rows.Close()

	var result []*identity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) RecordLogin(ctx context.Context, id string) error {
	return r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return recordLogin(ctx, tx, id)
	})
}

func (r *SQLiteRepository) UpsertAndRecordLogin(ctx context.Context, rec *identity.Record) error {
	return r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := upsert(ctx, tx, rec); err != nil {
			return err
		}
		return recordLogin(ctx, tx, rec.ID)
	})
}

func (r *SQLiteRepository) Recent(ctx context.Context) ([]*identity.Record, error) {
	query := `SELECT ` + prefixed("i.", selectColumns) + `
		FROM recent_logins r JOIN identities i ON i.id = r.identity_id
		ORDER BY r.position`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select recent logins: %w", err)
	}
	defer rows.Close()

	var result []*identity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// write runs fn in the single-writer region. The caller's ctx is only
// checked before the write starts.
func (r *SQLiteRepository) write(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return dbx.WithDetachedTx(ctx, r.db, fn)
}

// heal removes rows whose normalized email was already seen on an earlier
// row, keeping the first inserted. The duplicate check is a plain read so
// the common clean case takes no lock.
func (r *SQLiteRepository) heal(ctx context.Context) error {
	var dups int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) - COUNT(DISTINCT lower(email)) FROM identities WHERE email <> ''
	`).Scan(&dups)
	if err != nil {
		return fmt.Errorf("failed to check duplicates: %w", err)
	}
	if dups == 0 {
		return nil
	}

	return r.write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM identities
			WHERE email <> ''
			  AND seq NOT IN (SELECT MIN(seq) FROM identities WHERE email <> '' GROUP BY lower(email))
		`)
		if err != nil {
			return fmt.Errorf("failed to remove duplicate identities: %w", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM recent_logins WHERE identity_id NOT IN (SELECT id FROM identities)`)
		if err != nil {
			return fmt.Errorf("failed to prune recent logins: %w", err)
		}
		return nil
	})
}

func getByID(ctx context.Context, q dbx.DBTX, id string) (*identity.Record, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM identities WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get identity[%s]: %w", id, err)
	}
	return rec, nil
}

func upsert(ctx context.Context, q dbx.DBTX, in *identity.Record) error {
	if in.ID == "" {
		return fmt.Errorf("failed to upsert identity: empty id")
	}

	rec := in.Clone()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	rec.Normalize()

	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	query := `INSERT INTO identities (id, email, username, phone, first_name, last_name,
			credential_kind, credential_value, auth_method, linked_auth_methods, profile, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			username = excluded.username,
			phone = excluded.phone,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			credential_kind = excluded.credential_kind,
			credential_value = excluded.credential_value,
			auth_method = excluded.auth_method,
			linked_auth_methods = excluded.linked_auth_methods,
			profile = excluded.profile,
			updated_at = excluded.updated_at`
	_, err = q.ExecContext(ctx, query,
		rec.ID, rec.Email, rec.Username, rec.Phone, rec.FirstName, rec.LastName,
		rec.Credential.Kind.String(), rec.Credential.Value,
		rec.AuthMethod.String(), identity.FormatAuthMethods(rec.LinkedAuthMethods),
		string(profile), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

func recordLogin(ctx context.Context, q dbx.DBTX, id string) error {
	rows, err := q.QueryContext(ctx, `SELECT identity_id FROM recent_logins ORDER BY position`)
	if err != nil {
		return fmt.Errorf("failed to read recent logins: %w", err)
	}
	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	ids = identity.Touch(ids, id)

	if _, err := q.ExecContext(ctx, `DELETE FROM recent_logins`); err != nil {
		return fmt.Errorf("failed to reset recent logins: %w", err)
	}
	for pos, v := range ids {
		if _, err := q.ExecContext(ctx, `INSERT INTO recent_logins (position, identity_id) VALUES (?, ?)`, pos, v); err != nil {
			return fmt.Errorf("failed to write recent login: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*identity.Record, error) {
	var (
		rec                  identity.Record
		kind, method, linked string
		profile              string
		updatedAt            int64
	)
	err := s.Scan(&rec.ID, &rec.Email, &rec.Username, &rec.Phone, &rec.FirstName, &rec.LastName,
		&kind, &rec.Credential.Value, &method, &linked, &profile, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}

	if rec.Credential.Kind, err = identity.ParseCredentialKind(kind); err != nil {
		return nil, err
	}
	if rec.AuthMethod, err = identity.ParseAuthMethod(method); err != nil {
		return nil, err
	}
	if rec.LinkedAuthMethods, err = identity.ParseAuthMethods(linked); err != nil {
		return nil, err
	}
	if profile != "" && profile != "null" && profile != "{}" {
		if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
