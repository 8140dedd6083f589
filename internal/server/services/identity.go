// Package services contains server-side business logic.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/cryptox"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/identities"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ErrInvalidRecord marks a request the directory refuses to store or look up.
var ErrInvalidRecord = errors.New("invalid record")

// IdentityService is the remote identity directory. Lookups follow the
// client's identifier rules; writes are stamped with the server clock.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "identity_service"),
		now:         time.Now,
	}
}

// FindByCredential returns common.ErrorNotFound when nothing matches.
func (s *IdentityService) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	value = identity.NormalizeIdentifier(method, value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidRecord, method)
	}

	rec, err := s.repomanager.Identities(s.db).FindByCredential(ctx, method, value)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.log.Error(ctx, "lookup failed", "method", method.String(), "error", err)
		return nil, common.ErrorInternal
	}
	return rec, nil
}

// Upsert validates and normalizes in, stamps UpdatedAt and stores it. An
// identifier owned by another record yields *identities.ConflictError.
func (s *IdentityService) Upsert(ctx context.Context, in *identity.Record) (*identity.Record, error) {
	rec := in.Clone()
	rec.UpdatedAt = s.now()
	rec.Normalize()

	if err := validate(rec); err != nil {
		return nil, err
	}

	stored, err := s.repomanager.Identities(s.db).Upsert(ctx, rec)
	if err != nil {
		var ce *identities.ConflictError
		if errors.As(err, &ce) {
			s.log.Info(ctx, "identifier collision", "identity", rec.ID, "field", ce.Field)
			return nil, err
		}
		s.log.Error(ctx, "upsert failed", "identity", rec.ID, "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "identity stored", "identity", stored.ID)
	return stored, nil
}

func validate(rec *identity.Record) error {
	if _, err := uuid.Parse(rec.ID); err != nil {
		return fmt.Errorf("%w: id: %v", ErrInvalidRecord, err)
	}
	if rec.Email == "" && rec.Username == "" && rec.Phone == "" {
		return fmt.Errorf("%w: no identifier", ErrInvalidRecord)
	}
	switch rec.Credential.Kind {
	case identity.CredentialNone, identity.CredentialInlineHash:
	default:
		return fmt.Errorf("%w: credential kind %s cannot be stored remotely", ErrInvalidRecord, rec.Credential.Kind)
	}
	if rec.Credential.Kind == identity.CredentialInlineHash && !cryptox.IsHandle(rec.Credential.Value) {
		return fmt.Errorf("%w: credential is not a password hash", ErrInvalidRecord)
	}
	return nil
}
