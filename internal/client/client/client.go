package client

import (
	"context"

	"github.com/dmitrijs2005/accountsync/internal/identity"
)

// Gateway is the remote identity store as seen by the client.
type Gateway interface {
	// FindByCredential returns a NotFound *GatewayError when no remote
	// record matches.
	FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error)
	// Upsert stores rec remotely and returns the stored copy. A Conflict
	// *GatewayError means another remote record already owns one of rec's
	// identifiers.
	Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error)
	Ping(ctx context.Context) error
	Close() error
}
