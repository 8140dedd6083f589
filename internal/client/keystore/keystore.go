// Package keystore holds password hash handles outside the identity rows.
//
// A record whose credential kind is keystore carries no hash itself; the
// handle lives here under the record id. Two drivers exist: a table in the
// client SQLite database and a Redis instance.
package keystore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountsync/internal/common"
)

// ErrNotFound is returned by Get when no handle is stored for the id.
var ErrNotFound = common.ErrorNotFound

type Keystore interface {
	Put(ctx context.Context, identityID, handle string) error
	// Get returns ErrNotFound when nothing is stored for identityID.
	Get(ctx context.Context, identityID string) (string, error)
	Delete(ctx context.Context, identityID string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// Open returns the keystore selected by driver. DriverNone yields (nil, nil):
// credentials are then kept as inline hashes.
func Open(ctx context.Context, driver string, sqlite *SQLiteKeystore, redisCfg RedisConfig) (Keystore, error) {
	switch driver {
	case DriverSQLite, "":
		return sqlite, nil
	case DriverRedis:
		ks, err := NewRedis(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		return ks, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown keystore driver %q", driver)
	}
}
