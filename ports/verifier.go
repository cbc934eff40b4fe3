package ports

import (
	"context"

	"hvt/domain/verdict"
)

// Verifier issues a verdict for one candidate of a fixed task
type Verifier interface {
	Verify(ctx context.Context, prompt, candidate string, metadata map[string]any) (*verdict.VerificationResult, error)
}
