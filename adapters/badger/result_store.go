// Package badger provides a BadgerDB-backed result store for the verification cache.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"hvt/domain/core"
)

const keyPrefix = "verdict/"

// Config holds configuration for the result store
type Config struct {
	// Path is the database directory; ignored when InMemory is set
	Path string

	// InMemory keeps everything in RAM, for tests
	InMemory bool

	// SyncWrites trades throughput for durability
	SyncWrites bool

	// GCInterval is how often value log GC runs; 0 disables it
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a store at path
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// ResultStore implements ports.ResultStore on BadgerDB
type ResultStore struct {
	db     *badger.DB
	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens or creates the database described by cfg
func Open(cfg Config) (*ResultStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent result store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create result store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	s := &ResultStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Load returns the encoded result stored under key
func (s *ResultStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("result %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", key, err)
	}
	return data, nil
}

// Save stores data under key, replacing any previous value
func (s *ResultStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("save result %s: %w", key, err)
	}
	return nil
}

// Count returns the number of stored results
func (s *ResultStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close stops GC and closes the database
func (s *ResultStore) Close() error {
	if s.stopCh != nil {
		close(s.stopCh)
		<-s.doneCh
		s.stopCh = nil
	}
	return s.db.Close()
}

func (s *ResultStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				log.Printf("[WARN] [ResultStore] value log GC: %v", err)
			}
		}
	}
}
