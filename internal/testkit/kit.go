package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"hvt/domain/core"
	"hvt/ports"
)

// CountingRule returns a fixed outcome and counts invocations
type CountingRule struct {
	RuleName    string
	Passed      bool
	Diagnostics map[string]any
	Err         error
	calls       atomic.Int64
}

func (r *CountingRule) Name() string { return r.RuleName }

func (r *CountingRule) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	r.calls.Add(1)
	if r.Err != nil {
		return false, nil, r.Err
	}
	return r.Passed, r.Diagnostics, nil
}

// Calls returns how many times Check ran
func (r *CountingRule) Calls() int {
	return int(r.calls.Load())
}

// CountingJudge returns a fixed score and counts invocations
type CountingJudge struct {
	ModelName string
	Value     float64
	Err       error
	// Gate, when set, blocks each call until it is closed
	Gate  chan struct{}
	calls atomic.Int64
}

func (j *CountingJudge) Name() string { return j.ModelName }

func (j *CountingJudge) Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error) {
	j.calls.Add(1)
	if j.Gate != nil {
		select {
		case <-j.Gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if j.Err != nil {
		return 0, j.Err
	}
	return j.Value, nil
}

// Calls returns how many times Score ran
func (j *CountingJudge) Calls() int {
	return int(j.calls.Load())
}

// MockJudge is a testify mock implementing ports.Judge
type MockJudge struct {
	mock.Mock
	ModelName string
}

func (m *MockJudge) Name() string { return m.ModelName }

func (m *MockJudge) Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error) {
	args := m.Called(ctx, prompt, candidate, metadata)
	return args.Get(0).(float64), args.Error(1)
}

// FixedCalibrator returns Value for every input
type FixedCalibrator struct {
	Value float64
}

func (c FixedCalibrator) Predict(judgeScore float64, features map[string]float64) float64 {
	return c.Value
}

// InMemoryLedger implements ports.DecisionLedger with in-memory storage
type InMemoryLedger struct {
	mu        sync.RWMutex
	decisions map[core.DecisionID]ports.Decision
	order     []core.DecisionID
	Err       error
}

// NewInMemoryLedger creates an empty ledger
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{decisions: make(map[core.DecisionID]ports.Decision)}
}

func (l *InMemoryLedger) Record(ctx context.Context, decision ports.Decision) error {
	if l.Err != nil {
		return l.Err
	}
	if decision.ID == "" {
		return fmt.Errorf("%w: decision id is required", core.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.decisions[decision.ID]; !exists {
		l.order = append(l.order, decision.ID)
	}
	l.decisions[decision.ID] = decision
	return nil
}

// List returns the newest decisions first, optionally filtered by task
func (l *InMemoryLedger) List(ctx context.Context, taskName string, limit int) ([]ports.Decision, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []ports.Decision
	for i := len(l.order) - 1; i >= 0; i-- {
		d := l.decisions[l.order[i]]
		if taskName != "" && d.Result.Provenance.TaskName != taskName {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of recorded decisions
func (l *InMemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// MapStore implements ports.ResultStore on a map
type MapStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMapStore creates an empty store
func NewMapStore() *MapStore {
	return &MapStore{entries: make(map[string][]byte)}
}

func (s *MapStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", key, core.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MapStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), data...)
	return nil
}

// Put overwrites an entry with raw bytes
func (s *MapStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = data
}

// Keys returns the stored keys in sorted order
func (s *MapStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
