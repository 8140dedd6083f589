// Package repomanager picks the identity store backing the server: the
// Postgres one for a real DSN, the in-memory one for DATABASE_DSN=memory.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accountsync/internal/dbx"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/identities"
)

// RepositoryManager binds identity repositories to a connection or
// transaction and owns the schema.
type RepositoryManager interface {
	// RunMigrations brings the identities schema up to date. The in-memory
	// manager has no schema and returns nil.
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
}
