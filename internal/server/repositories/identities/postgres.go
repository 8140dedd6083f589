package identities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/dbx"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/jackc/pgx/v5/pgconn"
)

const selectColumns = `id, email, username, phone, first_name, last_name,
	credential_kind, credential_value, auth_method, linked_auth_methods, profile, updated_at`

// SQLSTATE unique_violation
const uniqueViolation = "23505"

// unique index name -> identifier field
var constraintFields = map[string]string{
	"identities_email_key":    identity.FieldEmail,
	"identities_username_key": identity.FieldUsername,
	"identities_phone_key":    identity.FieldPhone,
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	var where string
	switch method {
	case identity.LoginEmail:
		where = `lower(email) = lower($1)`
	case identity.LoginPhone:
		where = `phone = $1`
	default:
		where = `lower(username) = lower($1)`
	}

	query := `SELECT ` + selectColumns + ` FROM identities WHERE ` + where + ` LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*identity.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	if rec.Profile == nil {
		profile = []byte("{}")
	}

	query :=
		`INSERT INTO identities (id, email, username, phone, first_name, last_name,
			credential_kind, credential_value, auth_method, linked_auth_methods, profile, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
		 ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			username = EXCLUDED.username,
			phone = EXCLUDED.phone,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			credential_kind = EXCLUDED.credential_kind,
			credential_value = EXCLUDED.credential_value,
			auth_method = EXCLUDED.auth_method,
			linked_auth_methods = EXCLUDED.linked_auth_methods,
			profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at
		 RETURNING ` + selectColumns

	stored, err := scanRecord(r.db.QueryRowContext(ctx, query,
		rec.ID, rec.Email, rec.Username, rec.Phone, rec.FirstName, rec.LastName,
		rec.Credential.Kind.String(), rec.Credential.Value,
		rec.AuthMethod.String(), identity.FormatAuthMethods(rec.LinkedAuthMethods),
		string(profile), rec.UpdatedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, &ConflictError{Field: constraintFields[pgErr.ConstraintName]}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*identity.Record, error) {
	var (
		rec                  identity.Record
		kind, method, linked string
		profile              []byte
		updatedAt            time.Time
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
	if p := strings.TrimSpace(string(profile)); p != "" && p != "{}" && p != "null" {
		if err := json.Unmarshal(profile, &rec.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}
