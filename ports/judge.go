package ports

import "context"

// Judge is a probabilistic scorer consulted only when the rule fails.
// Score returns a confidence in [0, 1]; transport failures are returned as
// errors and are not retried by the engine.
type Judge interface {
	Name() string
	Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error)
}
