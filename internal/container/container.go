// Package container wires configuration into a ready verification service.
package container

import (
	"context"
	"fmt"

	"hvt/adapters/badger"
	"hvt/adapters/postgres"
	"hvt/app"
	"hvt/internal"
	"hvt/internal/builtins"
	"hvt/internal/config"
	"hvt/internal/metrics"
	"hvt/internal/migration"
	"hvt/internal/registry"
	"hvt/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds the application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Verification
	Registry *registry.Registry
	Service  *app.VerificationService
	Metrics  *metrics.Recorder

	// Storage, each optional
	DB     *sqlx.DB
	Store  *badger.ResultStore
	Ledger ports.DecisionLedger
}

// New creates a container and registers the configured tasks
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config:   cfg,
		Logger:   internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)).With("container"),
		Registry: registry.New(),
	}

	if err := c.initTasks(); err != nil {
		return nil, err
	}
	return c, nil
}

// Bootstrap builds a container with every backend the config enables
func Bootstrap(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*Container, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	c.Metrics = rec

	if cfg.Cache.Backend == config.CacheBackendBadger {
		if err := c.InitResultStore(badger.DefaultConfig(cfg.Cache.Dir)); err != nil {
			c.Close()
			return nil, err
		}
	}

	if cfg.HasLedger() {
		db, err := postgres.Connect(cfg.Database.URL, cfg.Database.MaxOpen)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
		}
		if err := c.InitWithDatabase(ctx, db); err != nil {
			db.Close()
			c.Close()
			return nil, err
		}
	}

	c.BuildService()
	return c, nil
}

// fileCacheDir is the per-task cache directory, empty unless the file backend is active
func (c *Container) fileCacheDir() string {
	if c.Config.Cache.Backend == config.CacheBackendBadger {
		return ""
	}
	return c.Config.Cache.Dir
}

func (c *Container) initTasks() error {
	cfg := c.Config
	if cfg.Tasks.UseBuiltins {
		if err := builtins.RegisterBuiltinTasks(c.Registry, c.fileCacheDir()); err != nil {
			return fmt.Errorf("failed to register builtin tasks: %w", err)
		}
	}

	if cfg.Tasks.File != "" {
		names, err := builtins.LoadTaskFile(c.Registry, cfg.Tasks.File, builtins.LoadOptions{
			CacheDir: c.fileCacheDir(),
			JudgeMin: cfg.Tasks.JudgeMin,
			Judge: builtins.JudgeDefaults{
				APIKey:  cfg.Judge.OpenAIKey,
				Model:   cfg.Judge.Model,
				BaseURL: cfg.Judge.BaseURL,
				Timeout: cfg.Judge.Timeout,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to load task file %s: %w", cfg.Tasks.File, err)
		}
		c.Logger.Info("Loaded %d tasks from %s", len(names), cfg.Tasks.File)
	}
	return nil
}

// InitResultStore opens the shared badger result store
func (c *Container) InitResultStore(cfg badger.Config) error {
	store, err := badger.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	c.Store = store
	return nil
}

// InitWithDatabase migrates db and uses it as the decision ledger
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		return err
	}

	c.DB = db
	c.Ledger = postgres.NewDecisionLedger(db)
	c.Logger.Info("Decision ledger ready (schema %s)", runner.Version())
	return nil
}

// BuildService creates the verification service over the initialized backends
func (c *Container) BuildService() *app.VerificationService {
	opts := []app.ServiceOption{
		app.WithMetrics(c.Metrics),
		app.WithLogger(c.Logger.With("verify")),
	}
	if c.Store != nil {
		opts = append(opts, app.WithResultStore(c.Store))
	}
	if c.Ledger != nil {
		opts = append(opts, app.WithDecisionLedger(c.Ledger))
	}
	c.Service = app.NewVerificationService(c.Registry, opts...)
	return c.Service
}

// Close releases the result store and database
func (c *Container) Close() error {
	var firstErr error
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			firstErr = err
		}
		c.Store = nil
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.DB = nil
	}
	return firstErr
}
