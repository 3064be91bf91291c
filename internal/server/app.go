// Package server wires the decksync server together: storage, document
// blobs, the gRPC API and the purge scheduler, with graceful shutdown on
// SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/decksync/internal/blobs"
	"github.com/dmitrijs2005/decksync/internal/locker"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/observability"
	"github.com/dmitrijs2005/decksync/internal/server/config"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/decksync/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/decksync/internal/server/grpc"
)

// seams for tests
var (
	newLogger      = logging.New
	setupTracing   = observability.SetupTracing
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newRedisClient = locker.NewRedisClient
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	server    *gs.GRPCServer
	scheduler *services.PurgeScheduler
	closers   []func(context.Context) error
}

// NewApp opens every dependency named by c and migrates the database. On
// failure whatever was opened so far is closed again.
func NewApp(ctx context.Context, c *config.Config) (app *App, err error) {
	app = &App{config: c}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	logger, closeLogger, err := newLogger(logging.Options{
		Level: c.LogLevel, Format: c.LogFormat, Backend: c.LogBackend, File: c.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}
	app.logger = logger
	app.closers = append(app.closers, func(context.Context) error { return closeLogger() })

	shutdownTracing, err := setupTracing(observability.TracingConfig{
		Enabled: c.TracingEnabled, ServiceName: "decksync-server", Writer: os.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}
	app.closers = append(app.closers, shutdownTracing)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, func(context.Context) error { return db.Close() })

	rm, err := newRepoManager(db)
	if err != nil {
		return nil, fmt.Errorf("repository init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var lease locker.Locker = locker.NewLocalLocker()
	if c.RedisAddr != "" {
		client, err := newRedisClient(ctx, c.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		lease = locker.NewRedisLocker(client)
		app.closers = append(app.closers, func(context.Context) error { return client.Close() })
	}

	store := blobs.NewS3Store(blobs.S3Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})

	cascade := services.NewCascadeService(db, rm, logger.With("service", "cascade"))
	syncSvc := services.NewSyncService(db, rm, store, cascade, logger.With("service", "sync"))
	notes := services.NewNoteService(db, rm, nil, logger.With("service", "notes"))
	purge := services.NewPurgeService(db, rm, store, logger.With("service", "purge"))

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, syncSvc, notes, cascade, c.SecretKey)
	app.scheduler = services.NewPurgeScheduler(purge, lease, c.PurgeInterval,
		models.PurgeOptions{RetentionDays: c.PurgeRetentionDays, BatchSize: c.PurgeBatchSize},
		logger.With("module", "purge_scheduler"))

	return app, nil
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil && app.logger != nil {
			app.logger.Warn(ctx, "shutdown step failed", "error", err)
		}
	}
	app.closers = nil
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// gRPC server fails. The purge scheduler never stops the process.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.close(context.WithoutCancel(ctx))

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.server.Run(gctx) })
	g.Go(func() error { return app.scheduler.Run(gctx) })

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
