package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accountsync/internal/dbx"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/identities"
)

// MemoryRepositoryManager serves one process-wide in-memory store and
// ignores the db handle it is given.
type MemoryRepositoryManager struct {
	identities *identities.MemoryRepository
}

func NewMemoryRepositoryManager() RepositoryManager {
	return &MemoryRepositoryManager{identities: identities.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Identities(dbx.DBTX) identities.Repository {
	return m.identities
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }
