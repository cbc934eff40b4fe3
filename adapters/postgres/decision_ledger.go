package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hvt/domain/core"
	"hvt/domain/verdict"
	"hvt/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DefaultListLimit caps List when the caller passes a non-positive limit
const DefaultListLimit = 100

// decisionRow mirrors the hvt_decisions table
type decisionRow struct {
	ID              string          `db:"id"`
	Fingerprint     string          `db:"fingerprint"`
	TaskName        string          `db:"task_name"`
	Prompt          string          `db:"prompt"`
	Candidate       string          `db:"candidate"`
	Verdict         string          `db:"verdict"`
	Score           float64         `db:"score"`
	RuleName        string          `db:"rule_name"`
	RulePassed      bool            `db:"rule_passed"`
	ModelName       sql.NullString  `db:"model_name"`
	ModelInvoked    bool            `db:"model_invoked"`
	ModelConfidence sql.NullFloat64 `db:"model_confidence"`
	Provenance      []byte          `db:"provenance"`
	Diagnostics     []byte          `db:"diagnostics"`
	DecidedAt       time.Time       `db:"decided_at"`
}

// DecisionLedger implements ports.DecisionLedger on PostgreSQL
type DecisionLedger struct {
	db *sqlx.DB
}

// NewDecisionLedger creates a new PostgreSQL decision ledger. The schema is
// created by migration.MigrationRunner.
func NewDecisionLedger(db *sqlx.DB) *DecisionLedger {
	return &DecisionLedger{db: db}
}

// Connect opens a pooled connection for the ledger
func Connect(databaseURL string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Record appends one decision
func (l *DecisionLedger) Record(ctx context.Context, decision ports.Decision) error {
	row, err := toRow(decision)
	if err != nil {
		return err
	}

	query := `INSERT INTO hvt_decisions (
		id, fingerprint, task_name, prompt, candidate, verdict, score,
		rule_name, rule_passed, model_name, model_invoked, model_confidence,
		provenance, diagnostics, decided_at
	) VALUES (
		:id, :fingerprint, :task_name, :prompt, :candidate, :verdict, :score,
		:rule_name, :rule_passed, :model_name, :model_invoked, :model_confidence,
		:provenance, :diagnostics, :decided_at
	) ON CONFLICT (id) DO NOTHING`

	if _, err := l.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to record decision %s: %w", decision.ID, err)
	}
	return nil
}

// List returns the newest decisions first, optionally filtered by task
func (l *DecisionLedger) List(ctx context.Context, taskName string, limit int) ([]ports.Decision, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, fingerprint, task_name, prompt, candidate, verdict, score,
		rule_name, rule_passed, model_name, model_invoked, model_confidence,
		provenance, diagnostics, decided_at
	FROM hvt_decisions
	WHERE ($1 = '' OR task_name = $1)
	ORDER BY decided_at DESC, id DESC
	LIMIT $2`

	var rows []decisionRow
	if err := l.db.SelectContext(ctx, &rows, query, taskName, limit); err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	decisions := make([]ports.Decision, 0, len(rows))
	for _, row := range rows {
		d, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func toRow(d ports.Decision) (decisionRow, error) {
	if d.ID == "" {
		return decisionRow{}, fmt.Errorf("%w: decision id is required", core.ErrInvalidArgument)
	}
	prov := d.Result.Provenance

	provenanceJSON, err := json.Marshal(prov)
	if err != nil {
		return decisionRow{}, fmt.Errorf("failed to marshal provenance: %w", err)
	}
	diagnostics := d.Result.Diagnostics
	if diagnostics == nil {
		diagnostics = map[string]any{}
	}
	diagnosticsJSON, err := json.Marshal(diagnostics)
	if err != nil {
		return decisionRow{}, fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	row := decisionRow{
		ID:           d.ID.String(),
		Fingerprint:  d.Fingerprint.String(),
		TaskName:     prov.TaskName,
		Prompt:       d.Prompt,
		Candidate:    d.Candidate,
		Verdict:      d.Result.Verdict.String(),
		Score:        d.Result.Score,
		RuleName:     prov.RuleName,
		RulePassed:   prov.RulePassed,
		ModelInvoked: prov.ModelInvoked,
		Provenance:   provenanceJSON,
		Diagnostics:  diagnosticsJSON,
		DecidedAt:    prov.Timestamp.Time(),
	}
	if prov.ModelName != nil {
		row.ModelName = sql.NullString{String: *prov.ModelName, Valid: true}
	}
	if prov.ModelConfidence != nil {
		row.ModelConfidence = sql.NullFloat64{Float64: *prov.ModelConfidence, Valid: true}
	}
	return row, nil
}

func fromRow(row decisionRow) (ports.Decision, error) {
	v, err := verdict.ParseVerdict(row.Verdict)
	if err != nil {
		return ports.Decision{}, fmt.Errorf("decision %s: %w", row.ID, err)
	}

	var prov verdict.Provenance
	if err := json.Unmarshal(row.Provenance, &prov); err != nil {
		return ports.Decision{}, fmt.Errorf("failed to unmarshal provenance for %s: %w", row.ID, err)
	}
	diagnostics := map[string]any{}
	if len(row.Diagnostics) > 0 {
		if err := json.Unmarshal(row.Diagnostics, &diagnostics); err != nil {
			return ports.Decision{}, fmt.Errorf("failed to unmarshal diagnostics for %s: %w", row.ID, err)
		}
	}

	return ports.Decision{
		ID:          core.DecisionID(row.ID),
		Fingerprint: core.Fingerprint(row.Fingerprint),
		Prompt:      row.Prompt,
		Candidate:   row.Candidate,
		Result: verdict.VerificationResult{
			Verdict:     v,
			Score:       row.Score,
			Provenance:  prov,
			Diagnostics: diagnostics,
		},
	}, nil
}
