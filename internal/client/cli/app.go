package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/client/client"
	"github.com/dmitrijs2005/accountsync/internal/client/config"
	"github.com/dmitrijs2005/accountsync/internal/client/keystore"
	"github.com/dmitrijs2005/accountsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/accountsync/internal/client/services"
	"github.com/dmitrijs2005/accountsync/internal/common"
	"github.com/dmitrijs2005/accountsync/internal/identity"
	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/dmitrijs2005/accountsync/internal/telemetry"
)

// Mode is the connectivity state shown in the prompt.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// authAPI is the part of services.AuthService the CLI drives.
type authAPI interface {
	Login(ctx context.Context, rawInput, credential string) (*services.LoginOutcome, error)
	Register(ctx context.Context, req services.RegisterRequest) (*identity.Record, error)
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) (*identity.Session, error)
	ResumeSession(ctx context.Context) (*identity.Session, *identity.Record, error)
	RecentLogins(ctx context.Context) ([]*identity.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// conflictAPI is the part of services.ConflictService the CLI drives.
type conflictAPI interface {
	Resolve(ctx context.Context, d *identity.ConflictDescriptor, choice identity.Choice) (*identity.Record, error)
	ResolveFields(ctx context.Context, d *identity.ConflictDescriptor, sides map[string]identity.Side) (*identity.Record, error)
}

type App struct {
	config    *config.Config
	log       logging.Logger
	auth      authAPI
	conflicts conflictAPI
	// closers run in reverse order on Close.
	closers []func(context.Context) error

	mu   sync.Mutex
	Mode Mode

	session *identity.Session
	current *identity.Record
	pending *identity.ConflictDescriptor

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the client database, selects the keystore and wires the
// services from c. The returned App owns every opened resource; call Close.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogLevel)
	a := &App{
		config: c,
		log:    log,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	shutdown, err := telemetry.Setup(ctx, "accountsync-cli", c.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	repos := client.NewRepositories(db)

	ks, err := keystore.Open(ctx, c.KeystoreDriver, repos.Keystore, keystore.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("keystore: %w", err)
	}
	if ks != nil {
		a.closers = append(a.closers, func(context.Context) error { return ks.Close() })
	}

	secret, err := sessionSecret(ctx, repos.Metadata, c.SessionSecret)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	var gw client.Gateway
	if c.ReachabilityProbe != config.ProbeOffline {
		g, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("gateway: %w", err)
		}
		gw = g
	}

	passwords := services.NewPasswordService(ks, c.KeystoreTimeout, log)
	conflicts := services.NewConflictService(gw, repos.Identities, passwords, repos.ConflictLog, c.GatewayTimeout, log)
	a.conflicts = conflicts
	a.auth = services.NewAuthService(services.AuthDeps{
		Gateway:        gw,
		Reachability:   newReachability(c, gw),
		Identities:     repos.Identities,
		Sessions:       repos.Sessions,
		Passwords:      passwords,
		Conflicts:      conflicts,
		Tokens:         services.NewTokenIssuer(secret, c.SessionTTL),
		GatewayTimeout: c.GatewayTimeout,
		Logger:         log,
	}, services.SessionOptions{
		AutoLogin:                  c.AutoLogin,
		PreferOffline:              c.PreferOffline,
		AllowGoogleWithoutPassword: c.AllowGoogleWithoutPassword,
	})

	return a, nil
}

func newReachability(c *config.Config, gw client.Gateway) services.Reachability {
	switch c.ReachabilityProbe {
	case config.ProbeOffline:
		return services.Offline{}
	case config.ProbeOnline:
		return services.Online{}
	case config.ProbeTCP:
		return services.NewTCPReachability(c.ServerEndpointAddr, c.PingTimeout)
	default:
		if gw == nil {
			return services.Offline{}
		}
		return services.NewPingReachability(gw, c.PingTimeout)
	}
}

// sessionSecret returns the configured secret, or the one generated on a
// previous run, or generates and stores a new one.
func sessionSecret(ctx context.Context, meta metadata.Repository, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	return meta.GetOrSet(ctx, common.SessionSecretMetadataKey, func() ([]byte, error) {
		s, err := common.MakeRandHexString(32)
		return []byte(s), err
	})
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "switched mode", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) getStatus() string {
	var parts []string
	if a.current != nil {
		parts = append(parts, displayName(a.current))
	}
	if m := a.mode(); m != "" {
		parts = append(parts, string(m))
	}
	if a.pending != nil {
		parts = append(parts, "!"+a.pending.Kind.String())
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Run resumes the saved session when allowed, starts the connectivity
// watcher and blocks in the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			a.log.Warn(ctx, "close failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(a.out, "Welcome to accountsync (type 'help' for commands)")

	if !a.resume(ctx) {
		_ = a.Login(ctx)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.StatusInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) resume(ctx context.Context) bool {
	sess, rec, err := a.auth.ResumeSession(ctx)
	if err != nil {
		if !errors.Is(err, services.ErrNotLoggedIn) {
			a.log.Warn(ctx, "resume session failed", "error", err)
		}
		return false
	}
	a.session, a.current = sess, rec
	fmt.Fprintf(a.out, "Welcome back, %s\n", displayName(rec))
	return true
}

// Close releases the gateway and everything NewApp opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.auth != nil {
		errs = append(errs, a.auth.Close())
	}
	for _, c := range slices.Backward(a.closers) {
		errs = append(errs, c(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// StartOnlineStatusWatcher pings the backend every interval and flips Mode
// between online and offline until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	timeout := a.config.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.auth.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}
