package ports

import "context"

// ResultStore persists encoded verification results by fingerprint.
// Load returns an error wrapping core.ErrNotFound when the key is absent.
type ResultStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}
