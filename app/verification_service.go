package app

import (
	"context"
	"errors"
	"sync"

	"hvt/domain/verdict"
	"hvt/internal"
	"hvt/internal/cache"
	"hvt/internal/metrics"
	"hvt/internal/orchestrator"
	"hvt/internal/registry"
	"hvt/ports"
)

// VerificationService verifies candidates by task name over a shared registry.
// One HybridVerifier is built per task on first use and reused until the
// registry changes.
type VerificationService struct {
	registry *registry.Registry
	store    ports.ResultStore
	ledger   ports.DecisionLedger
	metrics  *metrics.Recorder
	logger   *internal.Logger

	cacheDir    string
	hasCacheDir bool

	mu        sync.Mutex
	verifiers map[string]builtVerifier
}

// builtVerifier is a verifier and the registry generation it was resolved at
type builtVerifier struct {
	verifier   *orchestrator.HybridVerifier
	generation uint64
}

// ServiceOption configures a VerificationService
type ServiceOption func(*VerificationService)

// WithCacheDir overrides every task's cache directory
func WithCacheDir(dir string) ServiceOption {
	return func(s *VerificationService) {
		s.cacheDir = dir
		s.hasCacheDir = true
	}
}

// WithResultStore backs every task's cache with one shared store
func WithResultStore(store ports.ResultStore) ServiceOption {
	return func(s *VerificationService) {
		s.store = store
	}
}

// WithDecisionLedger records fresh decisions of every task
func WithDecisionLedger(ledger ports.DecisionLedger) ServiceOption {
	return func(s *VerificationService) {
		s.ledger = ledger
	}
}

// WithMetrics reports decisions to rec
func WithMetrics(rec *metrics.Recorder) ServiceOption {
	return func(s *VerificationService) {
		s.metrics = rec
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *internal.Logger) ServiceOption {
	return func(s *VerificationService) {
		s.logger = logger
	}
}

// NewVerificationService creates a service over reg
func NewVerificationService(reg *registry.Registry, opts ...ServiceOption) *VerificationService {
	s := &VerificationService{
		registry:  reg,
		logger:    internal.DefaultLogger,
		verifiers: make(map[string]builtVerifier),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the task registry the service resolves against
func (s *VerificationService) Registry() *registry.Registry {
	return s.registry
}

// Verifier returns the verifier for taskName. It is rebuilt whenever the
// registry has changed since it was built, so re-registration and Clear take
// effect immediately.
func (s *VerificationService) Verifier(taskName string) (*orchestrator.HybridVerifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	generation := s.registry.Generation()
	if built, ok := s.verifiers[taskName]; ok && built.generation == generation {
		return built.verifier, nil
	}
	delete(s.verifiers, taskName)

	opts := []orchestrator.Option{
		orchestrator.WithMetrics(s.metrics),
		orchestrator.WithLogger(s.logger),
	}
	if s.ledger != nil {
		opts = append(opts, orchestrator.WithLedger(s.ledger))
	}
	if s.store != nil {
		opts = append(opts, orchestrator.WithCache(cache.New("",
			cache.WithStore(s.store),
			cache.WithMetrics(s.metrics),
			cache.WithLogger(s.logger.With("Cache")))))
	} else if s.hasCacheDir {
		opts = append(opts, orchestrator.WithCacheDir(s.cacheDir))
	}

	v, err := orchestrator.New(s.registry, taskName, opts...)
	if err != nil {
		return nil, err
	}
	s.verifiers[taskName] = builtVerifier{verifier: v, generation: generation}
	return v, nil
}

// Verify issues a verdict for candidate under taskName
func (s *VerificationService) Verify(ctx context.Context, taskName, prompt, candidate string, metadata map[string]any) (*verdict.VerificationResult, error) {
	v, err := s.Verifier(taskName)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, prompt, candidate, metadata)
}

// TaskInfo summarizes a registered task
type TaskInfo struct {
	Name       string  `json:"name"`
	Rule       string  `json:"rule"`
	Judge      string  `json:"judge,omitempty"`
	Calibrated bool    `json:"calibrated"`
	JudgeMin   float64 `json:"judge_min"`
	CacheDir   string  `json:"cache_dir,omitempty"`
}

// Tasks describes every registered task in name order
func (s *VerificationService) Tasks() []TaskInfo {
	names := s.registry.Names()
	infos := make([]TaskInfo, 0, len(names))
	for _, name := range names {
		task, err := s.registry.Resolve(name)
		if err != nil {
			continue
		}
		infos = append(infos, TaskInfo{
			Name:       task.Name,
			Rule:       task.Rule.Name(),
			Judge:      task.ModelName(),
			Calibrated: task.Calibrator != nil,
			JudgeMin:   task.JudgeMin(),
			CacheDir:   task.CacheDir,
		})
	}
	return infos
}

// ErrNoLedger is returned by Decisions when no ledger is configured
var ErrNoLedger = errors.New("decision ledger is not configured")

// Decisions lists recorded decisions, newest first
func (s *VerificationService) Decisions(ctx context.Context, taskName string, limit int) ([]ports.Decision, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	return s.ledger.List(ctx, taskName, limit)
}
