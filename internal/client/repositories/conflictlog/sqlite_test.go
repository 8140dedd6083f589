package conflictlog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE conflict_log (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  identity_id TEXT    NOT NULL,
  kind        TEXT    NOT NULL,
  choice      TEXT    NOT NULL,
  fields      TEXT    NOT NULL DEFAULT '',
  resolved_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestAppendAndList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	at := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	first := &Entry{IdentityID: "id-1", Kind: "DATA_CONFLICT", Choice: "remote", Fields: []string{"firstName", "name"}, ResolvedAt: at}
	require.NoError(t, r.Append(ctx, first))
	assert.NotZero(t, first.ID)

	second := &Entry{IdentityID: "id-1", Kind: "LOCAL_ONLY", Choice: "sync"}
	require.NoError(t, r.Append(ctx, second))
	assert.False(t, second.ResolvedAt.IsZero())

	require.NoError(t, r.Append(ctx, &Entry{IdentityID: "id-2", Kind: "REMOTE_ONLY", Choice: "download"}))

	got, err := r.ListByIdentity(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID, "newest first")
	assert.Nil(t, got[0].Fields)
	assert.Equal(t, first, got[1])
}

func TestDBErrorsWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	require.ErrorContains(t, r.Append(context.Background(), &Entry{}), "failed to append conflict log")
	_, err := r.ListByIdentity(context.Background(), "x")
	require.ErrorContains(t, err, "failed to list conflict log")
}
