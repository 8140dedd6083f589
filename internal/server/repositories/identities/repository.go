// Package identities is the server-side directory of identity records.
package identities

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
)

type Repository interface {
	// FindByCredential returns common.ErrorNotFound when nothing matches.
	FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error)
	GetByID(ctx context.Context, id string) (*identity.Record, error)
	// Upsert inserts or replaces the record with rec.ID and returns the
	// stored copy. A *ConflictError means another record owns one of
	// rec's identifiers.
	Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error)
}

// ConflictError reports an identifier already owned by a different record.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return "identifier already in use"
	}
	return fmt.Sprintf("%s already in use", e.Field)
}

func (e *ConflictError) Unwrap() error { return common.ErrorAlreadyExists }
