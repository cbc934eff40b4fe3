package cache

import (
	"context"
	"fmt"

	"hvt/domain/core"
	"hvt/domain/verdict"
	"hvt/internal"
	"hvt/internal/metrics"
	"hvt/ports"
)

// Cache memoizes verification results by content fingerprint.
// Entries never expire. Missing or unreadable entries are misses.
type Cache struct {
	store   ports.ResultStore
	metrics *metrics.Recorder
	logger  *internal.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithStore selects the backing store instead of the file store
func WithStore(store ports.ResultStore) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithMetrics reports lookups to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Cache) {
		c.metrics = rec
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *internal.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache rooted at dir. An empty dir without WithStore yields a
// cache that stores nothing.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{logger: internal.DefaultLogger.With("Cache")}
	if dir != "" {
		c.store = NewFileStore(dir)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether results are persisted
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Key computes the fingerprint of a verification request
func Key(taskName, prompt, candidate string) core.Fingerprint {
	return core.ComputeFingerprint(taskName, prompt, candidate)
}

// Get returns the stored result, if any
func (c *Cache) Get(ctx context.Context, taskName, prompt, candidate string) (*verdict.VerificationResult, bool) {
	if !c.Enabled() {
		return nil, false
	}
	key := Key(taskName, prompt, candidate)

	data, err := c.store.Load(ctx, key.String())
	if err != nil {
		if !core.IsNotFoundError(err) {
			c.logger.Warn("lookup %s failed, treating as miss: %v", key, err)
		}
		c.metrics.CacheLookup("miss")
		return nil, false
	}

	result, err := verdict.Decode(data)
	if err != nil {
		c.logger.Warn("%v", core.NewCorruptionError(key, err))
		c.metrics.CacheLookup("corrupt")
		return nil, false
	}

	c.metrics.CacheLookup("hit")
	return result, true
}

// Set stores result, overwriting any previous entry
func (c *Cache) Set(ctx context.Context, taskName, prompt, candidate string, result *verdict.VerificationResult) error {
	if !c.Enabled() {
		return nil
	}
	key := Key(taskName, prompt, candidate)

	data, err := verdict.Encode(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", key, err)
	}
	if err := c.store.Save(ctx, key.String(), data); err != nil {
		return fmt.Errorf("store result %s: %w", key, err)
	}
	c.logger.Trace("stored %s (%s)", key, result.Verdict)
	return nil
}
