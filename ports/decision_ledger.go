package ports

import (
	"context"

	"hvt/domain/core"
	"hvt/domain/verdict"
)

// Decision is one freshly computed verification, as appended to a ledger
type Decision struct {
	ID          core.DecisionID            `json:"id"`
	Fingerprint core.Fingerprint           `json:"fingerprint"`
	Prompt      string                     `json:"prompt"`
	Candidate   string                     `json:"candidate"`
	Result      verdict.VerificationResult `json:"result"`
}

// DecisionLedger is an append-only audit log of verification decisions
type DecisionLedger interface {
	Record(ctx context.Context, decision Decision) error
	List(ctx context.Context, taskName string, limit int) ([]Decision, error)
}
