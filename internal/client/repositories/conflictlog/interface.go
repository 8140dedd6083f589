// Package conflictlog records every applied conflict resolution.
package conflictlog

import (
	"context"
	"time"
)

// Entry is one applied resolution.
type Entry struct {
	ID         int64
	IdentityID string
	Kind       string
	Choice     string
	// Fields lists the diverging fields that were settled.
	Fields     []string
	ResolvedAt time.Time
}

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// ListByIdentity returns entries for identityID, newest first.
	ListByIdentity(ctx context.Context, identityID string) ([]*Entry, error)
}
