// Package server wires the reference identity backend: storage, the identity
// service and the gRPC endpoint, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/accountsync/internal/logging"
	"github.com/dmitrijs2005/accountsync/internal/server/auth"
	"github.com/dmitrijs2005/accountsync/internal/server/config"
	"github.com/dmitrijs2005/accountsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountsync/internal/server/services"
	"github.com/dmitrijs2005/accountsync/internal/telemetry"

	gs "github.com/dmitrijs2005/accountsync/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	server   *gs.GRPCServer
	shutdown func(context.Context) error
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel)

	shutdown, err := telemetry.Setup(ctx, "accountsync-server", c.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	var (
		db *sql.DB
		rm repomanager.RepositoryManager
	)
	if c.DatabaseDSN == config.MemoryDSN {
		logger.Warn(ctx, "using in-memory identity store, data is lost on exit")
		rm = repomanager.NewMemoryRepositoryManager()
	} else {
		db, err = openDB(c.DatabaseDSN)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm = repomanager.NewPostgresRepositoryManager()
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		if db != nil {
			_ = db.Close()
		}
		_ = shutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	svc := services.NewIdentityService(db, rm, logger)
	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, svc, c.SecretKey, c.RequireToken)

	return &App{config: c, logger: logger, db: db, server: srv, shutdown: shutdown}, nil
}

// Run serves until ctx is cancelled or the process receives SIGINT/SIGTERM,
// then releases the database and flushes traces.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, err.Error())
	}

	return errors.Join(err, app.Close(context.WithoutCancel(ctx)))
}

func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.db != nil {
		errs = append(errs, app.db.Close())
		app.db = nil
	}
	if app.shutdown != nil {
		errs = append(errs, app.shutdown(ctx))
		app.shutdown = nil
	}
	return errors.Join(errs...)
}

// IssueToken mints an API token for subject with the configured secret and
// lifetime.
func IssueToken(c *config.Config, subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	return auth.GenerateToken(subject, []byte(c.SecretKey), c.AccessTokenValidityDuration)
}
