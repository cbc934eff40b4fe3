package migration

import (
	"context"

	"hvt/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the decision ledger schema
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every statement is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createDecisionsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create hvt_decisions table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createDecisionsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS hvt_decisions (
			id UUID PRIMARY KEY,
			fingerprint CHAR(64) NOT NULL,
			task_name VARCHAR(255) NOT NULL,
			prompt TEXT NOT NULL,
			candidate TEXT NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			rule_name VARCHAR(255) NOT NULL,
			rule_passed BOOLEAN NOT NULL,
			model_name VARCHAR(255),
			model_invoked BOOLEAN NOT NULL DEFAULT false,
			model_confidence DOUBLE PRECISION,
			provenance JSONB NOT NULL,
			diagnostics JSONB NOT NULL,
			decided_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_hvt_decisions_task_decided ON hvt_decisions(task_name, decided_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_hvt_decisions_fingerprint ON hvt_decisions(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_hvt_decisions_verdict ON hvt_decisions(verdict)`,
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
