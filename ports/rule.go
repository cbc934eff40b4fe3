package ports

import "context"

// Rule is a deterministic, metadata-driven pass/fail check for a candidate.
// Implementations must return the same outcome for the same inputs; the
// result cache relies on it. A missing or malformed metadata field is an
// error, not a failed check.
type Rule interface {
	Name() string
	Check(ctx context.Context, candidate string, metadata map[string]any) (passed bool, diagnostics map[string]any, err error)
}

// RuleFunc adapts a plain function into a named Rule
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error)
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	return r.Fn(ctx, candidate, metadata)
}
