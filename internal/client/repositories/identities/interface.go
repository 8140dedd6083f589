// Package identities is the client's local identity store: identity records
// keyed by id plus the recent-login index, both in the client SQLite
// database.
//
// Reads take no lock. Every mutating call runs inside a single-writer region
// and a detached transaction, so a caller that cancels mid-write never leaves
// a partial update behind and two writers never interleave.
package identities

import (
	"context"

	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// Repository describes the local identity store.
type Repository interface {
	// FindByCredential looks a record up by email or username
	// (case-insensitive) or phone (exact, normalized). Returns
	// common.ErrorNotFound when nothing matches.
	FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error)

	// GetByID returns common.ErrorNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*identity.Record, error)

	// Upsert inserts or replaces the record with rec.ID.
	Upsert(ctx context.Context, rec *identity.Record) error

	// All returns every record in insertion order.
	All(ctx context.Context) ([]*identity.Record, error)

	// RecordLogin moves id to the front of the recent-login index.
	RecordLogin(ctx context.Context, id string) error

	// Recent returns the records of the recent-login index, most recent
	// first. Ids whose record is gone are skipped.
	Recent(ctx context.Context) ([]*identity.Record, error)

	// UpsertAndRecordLogin is Upsert followed by RecordLogin as one atomic write.
	UpsertAndRecordLogin(ctx context.Context, rec *identity.Record) error
}
