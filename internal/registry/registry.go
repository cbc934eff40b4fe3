package registry

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"hvt/domain/core"
	"hvt/ports"
)

const (
	// ThresholdJudgeMin is the threshold key the decision pipeline compares
	// calibrated judge scores against
	ThresholdJudgeMin = "judge_min"

	// DefaultJudgeMin applies when a task does not set judge_min
	DefaultJudgeMin = 0.8
)

// DefaultThresholds returns a fresh copy of the thresholds a task gets when
// none are supplied
func DefaultThresholds() map[string]float64 {
	return map[string]float64{ThresholdJudgeMin: DefaultJudgeMin}
}

// TaskConfig binds a task name to its verification components.
// Values returned by Resolve are copies and never change after registration.
type TaskConfig struct {
	Name       string
	Rule       ports.Rule
	Judge      ports.Judge
	Calibrator ports.Calibrator
	thresholds map[string]float64
	CacheDir   string
}

// Thresholds returns a copy of the task thresholds
func (c TaskConfig) Thresholds() map[string]float64 {
	return maps.Clone(c.thresholds)
}

// Threshold looks up a single threshold
func (c TaskConfig) Threshold(key string) (float64, bool) {
	v, ok := c.thresholds[key]
	return v, ok
}

// JudgeMin is the minimum calibrated judge score for a PASS
func (c TaskConfig) JudgeMin() float64 {
	if v, ok := c.thresholds[ThresholdJudgeMin]; ok {
		return v
	}
	return DefaultJudgeMin
}

// HasJudge reports whether a judge fallback is configured
func (c TaskConfig) HasJudge() bool {
	return c.Judge != nil
}

// ModelName is the judge identifier recorded in provenance, empty without a judge
func (c TaskConfig) ModelName() string {
	if c.Judge == nil {
		return ""
	}
	return c.Judge.Name()
}

// Option configures a task at registration
type Option func(*TaskConfig) error

// WithJudge attaches a judge fallback
func WithJudge(judge ports.Judge) Option {
	return func(c *TaskConfig) error {
		c.Judge = judge
		return nil
	}
}

// WithCalibrator attaches a calibration model
func WithCalibrator(calibrator ports.Calibrator) Option {
	return func(c *TaskConfig) error {
		c.Calibrator = calibrator
		return nil
	}
}

// WithThresholds replaces the task thresholds. A nil or empty map keeps the defaults.
func WithThresholds(thresholds map[string]float64) Option {
	return func(c *TaskConfig) error {
		if len(thresholds) > 0 {
			c.thresholds = maps.Clone(thresholds)
		}
		return nil
	}
}

// WithCacheDir sets the task cache directory; "~" is expanded and the path made absolute
func WithCacheDir(dir string) Option {
	return func(c *TaskConfig) error {
		resolved, err := ResolveDir(dir)
		if err != nil {
			return err
		}
		c.CacheDir = resolved
		return nil
	}
}

// ResolveDir expands a leading ~ and makes the path absolute. Empty stays empty.
func ResolveDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", nil
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand cache dir %q: %w", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve cache dir %q: %w", dir, err)
	}
	return abs, nil
}

// Registry maps task names to their configurations. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tasks      map[string]TaskConfig
	generation uint64
}

// New creates an empty registry
func New() *Registry {
	return &Registry{tasks: make(map[string]TaskConfig)}
}

// Register inserts or replaces the task named name
func (r *Registry) Register(name string, rule ports.Rule, opts ...Option) error {
	if name == "" {
		return core.ErrEmptyTaskName
	}
	if rule == nil {
		return fmt.Errorf("task %s: rule is required: %w", name, core.ErrInvalidArgument)
	}

	cfg := TaskConfig{
		Name:       name,
		Rule:       rule,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
	}

	r.mu.Lock()
	r.tasks[name] = cfg
	r.generation++
	r.mu.Unlock()
	return nil
}

// Resolve returns the configuration registered under name
func (r *Registry) Resolve(name string) (TaskConfig, error) {
	r.mu.RLock()
	cfg, ok := r.tasks[name]
	r.mu.RUnlock()
	if !ok {
		return TaskConfig{}, core.NewTaskNotFoundError(name)
	}
	return cfg, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[name]
	return ok
}

// Clear removes every task
func (r *Registry) Clear() {
	r.mu.Lock()
	r.tasks = make(map[string]TaskConfig)
	r.generation++
	r.mu.Unlock()
}

// Generation changes on every Register and Clear
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Names returns the registered task names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
