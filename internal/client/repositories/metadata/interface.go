// Package metadata is a small key/value store in the client database. It
// holds the current session record.
package metadata

import (
	"context"

	"github.com/dmitrijs2005/accountsync/internal/identity"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	GetOrSet(ctx context.Context, key string, gen func() ([]byte, error)) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SessionRepository persists the single current session.
type SessionRepository interface {
	LoadSession(ctx context.Context) (*identity.Session, error)
	SaveSession(ctx context.Context, s *identity.Session) error
	ClearSession(ctx context.Context) error
}
