package core

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/archon-dev/archon/internal/assets"
	"github.com/archon-dev/archon/internal/config"
	"github.com/archon-dev/archon/internal/db"
	"github.com/archon-dev/archon/internal/hub"
	"github.com/archon-dev/archon/internal/jobs"
	"github.com/archon-dev/archon/internal/library"
	"github.com/archon-dev/archon/internal/store"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("core")

// App holds the components of the dev server that are shared between the
// HTTP layer, the scheduler and the file watcher.
type App struct {
	cfg     atomic.Pointer[config.Config]
	db      *sql.DB
	store   *store.Store
	hub     *hub.Hub
	jobs    *jobs.Manager
	scanner *library.Scanner
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	SetLogLevel(cfg.LogLevel)

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app := NewWithDB(cfg, database)
	if n, err := app.store.FailRunningJobs("server restarted before the job finished"); err != nil {
		log.Warnf("Could not mark interrupted jobs as failed: %v", err)
	} else if n > 0 {
		log.Warnf("Marked %d interrupted jobs as failed", n)
	}

	log.Info("Core application setup complete.")
	return app, nil
}

// NewWithDB builds an App around an already migrated database. The hub is
// started and the scan job registered.
func NewWithDB(cfg *config.Config, database *sql.DB) *App {
	st := store.New(database)
	h := hub.NewHub()
	go h.Run()

	app := &App{
		db:    database,
		store: st,
		hub:   h,
		jobs:  jobs.NewManager(st, h),
	}
	app.cfg.Store(cfg)
	app.scanner = library.NewScanner(st,
		func() string { return app.Config().Library.Path },
		func() time.Duration { return app.Config().Jobs.UnitDelay },
	)
	app.scanner.Register(app.jobs)
	return app
}

// SetLogLevel applies level to every package logger.
func SetLogLevel(level string) {
	if level == "" {
		return
	}
	if err := logging.SetLogLevel("*", level); err != nil {
		log.Warnf("Invalid log_level %q, keeping the current level: %v", level, err)
	}
}

func (a *App) Config() *config.Config { return a.cfg.Load() }

// SetConfig replaces the live configuration, for example after config.yml
// changed on disk.
func (a *App) SetConfig(cfg *config.Config) {
	a.cfg.Store(cfg)
	SetLogLevel(cfg.LogLevel)
}

func (a *App) DB() *sql.DB               { return a.db }
func (a *App) Store() *store.Store       { return a.store }
func (a *App) Hub() *hub.Hub             { return a.hub }
func (a *App) JobManager() *jobs.Manager { return a.jobs }
func (a *App) Scanner() *library.Scanner { return a.scanner }

// Close stops running jobs and the hub, then closes the database.
func (a *App) Close() {
	a.jobs.Shutdown()
	a.hub.Stop()
	if a.db != nil {
		a.db.Close()
	}
}
