package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/client/keystore"
	"github.com/dmitrijs2005/accountsync/internal/client/migrations"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/conflictlog"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/identities"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/accountsync/internal/filex"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Identities  identities.Repository
	Metadata    metadata.Repository
	Sessions    metadata.SessionRepository
	ConflictLog conflictlog.Repository
	// Keystore is the SQLite keystore driver; whether it is used depends on
	// configuration.
	Keystore *keystore.SQLiteKeystore
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrations.Up(ctx, db)
}

// InitDatabase opens (creating if needed) the SQLite database at dsn and
// brings its schema up to date. The pool holds a single connection: SQLite
// has one writer anyway and this keeps transactions from contending.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func NewRepositories(db *sql.DB) *Repositories {
	meta := metadata.NewSQLiteStore(db)
	return &Repositories{
		Identities:  identities.NewSQLiteRepository(db),
		Metadata:    meta,
		Sessions:    metadata.NewSessionStore(meta),
		ConflictLog: conflictlog.NewSQLiteRepository(db),
		Keystore:    keystore.NewSQLiteKeystore(db),
	}
}
