package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/client/client"
	"github.com/dmitrijs2005/accountsync/internal/client/keystore"
	"github.com/dmitrijs2005/accountsync/internal/cryptox"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/stretchr/testify/require"
)

/*************
 * Fake gateway
 *************/

type fakeGateway struct {
	mu      sync.Mutex
	records map[string]*identity.Record

	findErr   error
	upsertErr error
	pingErr   error

	finds   int
	upserts []*identity.Record
	closed  bool
}

func newFakeGateway(recs ...*identity.Record) *fakeGateway {
	g := &fakeGateway{records: map[string]*identity.Record{}}
	for _, r := range recs {
		g.put(r)
	}
	return g
}

func (g *fakeGateway) put(r *identity.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := r.Clone()
	c.Normalize()
	g.records[c.ID] = c
}

func (g *fakeGateway) get(id string) *identity.Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[id].Clone()
}

func (g *fakeGateway) FindByCredential(ctx context.Context, method identity.LoginMethod, value string) (*identity.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finds++
	if g.findErr != nil {
		return nil, g.findErr
	}
	for _, r := range g.records {
		if v := r.Identifier(method); v != "" && strings.EqualFold(v, value) {
			return r.Clone(), nil
		}
	}
	return nil, &client.GatewayError{Kind: client.KindNotFound, Err: errors.New("no such identity")}
}

func (g *fakeGateway) Upsert(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.upsertErr != nil {
		return nil, g.upsertErr
	}
	c := rec.Clone()
	c.Normalize()
	for id, other := range g.records {
		if id == c.ID {
			continue
		}
		if fields := identity.Colliding(other, c); len(fields) > 0 {
			return nil, &client.GatewayError{Kind: client.KindConflict, Field: fields[0], Err: errors.New("taken")}
		}
	}
	g.records[c.ID] = c
	g.upserts = append(g.upserts, c.Clone())
	return c.Clone(), nil
}

func (g *fakeGateway) Ping(ctx context.Context) error { return g.pingErr }

func (g *fakeGateway) Close() error {
	g.closed = true
	return nil
}

var transportErr = &client.GatewayError{Kind: client.KindTransport, Err: client.ErrUnavailable}

/*************
 * Slow keystore
 *************/

type slowKeystore struct{}

func (slowKeystore) Put(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowKeystore) Get(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowKeystore) Delete(context.Context, string) error { return nil }
func (slowKeystore) Close() error                         { return nil }

/*************
 * Fixtures
 *************/

var (
	hashMu    sync.Mutex
	hashCache = map[string]string{}
)

// hashOf returns a cached argon2id handle for pw; hashing is slow on purpose.
func hashOf(t *testing.T, pw string) string {
	t.Helper()
	hashMu.Lock()
	defer hashMu.Unlock()
	if h, ok := hashCache[pw]; ok {
		return h
	}
	h, err := cryptox.Hash(pw)
	require.NoError(t, err)
	hashCache[pw] = h
	return h
}

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func person(id, email, name string) *identity.Record {
	return &identity.Record{
		ID:         id,
		Email:      email,
		AuthMethod: identity.AuthPassword,
		Profile:    map[string]string{"name": name},
		UpdatedAt:  stamp,
	}
}

func withInline(t *testing.T, r *identity.Record, pw string) *identity.Record {
	r.Credential = identity.CredentialRef{Kind: identity.CredentialInlineHash, Value: hashOf(t, pw)}
	return r
}

/*************
 * Environment
 *************/

var envSeq atomic.Int64

type env struct {
	db        *sql.DB
	repos     *client.Repositories
	gw        *fakeGateway
	passwords *PasswordService
	conflicts *ConflictService
	tokens    *TokenIssuer
	auth      *AuthService
}

type envOption func(*envConfig)

type envConfig struct {
	ks       keystore.Keystore
	useKS    bool
	reach    Reachability
	opts     SessionOptions
	noRemote bool
}

func withSQLiteKeystore() envOption { return func(c *envConfig) { c.useKS = true } }

func withKeystore(ks keystore.Keystore) envOption {
	return func(c *envConfig) { c.ks = ks }
}

func withReachability(r Reachability) envOption { return func(c *envConfig) { c.reach = r } }

func withOptions(o SessionOptions) envOption { return func(c *envConfig) { c.opts = o } }

func withoutGateway() envOption { return func(c *envConfig) { c.noRemote = true } }

func newEnv(t *testing.T, gw *fakeGateway, opts ...envOption) *env {
	t.Helper()
	cfg := envConfig{reach: Online{}, opts: DefaultSessionOptions()}
	for _, o := range opts {
		o(&cfg)
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, envSeq.Add(1))
	db, err := client.InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := client.NewRepositories(db)
	ks := cfg.ks
	if cfg.useKS {
		ks = repos.Keystore
	}

	log := logging.Discard()
	e := &env{db: db, repos: repos, gw: gw}
	e.passwords = NewPasswordService(ks, 200*time.Millisecond, log)
	e.tokens = NewTokenIssuer([]byte("test-secret"), time.Hour)

	var gateway client.Gateway
	if !cfg.noRemote && gw != nil {
		gateway = gw
	}
	e.conflicts = NewConflictService(gateway, repos.Identities, e.passwords, repos.ConflictLog, time.Second, log)
	e.auth = NewAuthService(AuthDeps{
		Gateway:        gateway,
		Reachability:   cfg.reach,
		Identities:     repos.Identities,
		Sessions:       repos.Sessions,
		Passwords:      e.passwords,
		Conflicts:      e.conflicts,
		Tokens:         e.tokens,
		GatewayTimeout: time.Second,
		Logger:         log,
	}, cfg.opts)
	return e
}

// seedLocal stores r in the local identity store.
func (e *env) seedLocal(t *testing.T, r *identity.Record) {
	t.Helper()
	require.NoError(t, e.repos.Identities.Upsert(context.Background(), r))
}

func (e *env) local(t *testing.T, id string) *identity.Record {
	t.Helper()
	r, err := e.repos.Identities.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (e *env) recentIDs(t *testing.T) []string {
	t.Helper()
	recs, err := e.repos.Identities.Recent(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids
}
