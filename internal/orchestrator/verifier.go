package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"hvt/domain/core"
	"hvt/domain/verdict"
	"hvt/internal"
	"hvt/internal/cache"
	"hvt/internal/metrics"
	"hvt/internal/registry"
	"hvt/ports"
)

// Feature names passed to the calibrator
const (
	FeaturePromptLength    = "prompt_length"
	FeatureCandidateLength = "candidate_length"
)

// Diagnostics keys
const (
	DiagRule       = "rule"
	DiagJudgeScore = "judge_score"
)

// HybridVerifier runs the rule → judge → calibration pipeline for one task
type HybridVerifier struct {
	task    registry.TaskConfig
	cache   *cache.Cache
	ledger  ports.DecisionLedger
	metrics *metrics.Recorder
	logger  *internal.Logger
	flights singleflight.Group
}

type options struct {
	cacheDir    string
	hasCacheDir bool
	cache       *cache.Cache
	ledger      ports.DecisionLedger
	metrics     *metrics.Recorder
	logger      *internal.Logger
}

// Option configures a HybridVerifier
type Option func(*options)

// WithCacheDir overrides the task's cache directory. An empty dir disables caching.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
		o.hasCacheDir = true
	}
}

// WithCache supplies a ready cache, taking precedence over any directory
func WithCache(c *cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithLedger records every freshly computed decision
func WithLedger(ledger ports.DecisionLedger) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

// WithMetrics reports decisions to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = rec
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *internal.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New resolves taskName in reg and prepares its cache
func New(reg *registry.Registry, taskName string, opts ...Option) (*HybridVerifier, error) {
	task, err := reg.Resolve(taskName)
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = internal.DefaultLogger
	}
	logger := o.logger.With("Orchestrator")

	c := o.cache
	if c == nil {
		dir := task.CacheDir
		if o.hasCacheDir {
			if dir, err = registry.ResolveDir(o.cacheDir); err != nil {
				return nil, err
			}
		}
		c = cache.New(dir, cache.WithMetrics(o.metrics), cache.WithLogger(o.logger.With("Cache")))
	}

	return &HybridVerifier{
		task:    task,
		cache:   c,
		ledger:  o.ledger,
		metrics: o.metrics,
		logger:  logger,
	}, nil
}

// Task returns the resolved task configuration
func (v *HybridVerifier) Task() registry.TaskConfig {
	return v.task
}

// Verify issues a verdict for candidate. Rule and judge errors are returned
// unchanged; nothing is cached for a failed verification.
//
// Concurrent calls for the same fingerprint share one computation. It runs
// detached from every caller's cancellation; a caller whose ctx ends stops
// waiting and gets ctx.Err() while the others still receive the result.
func (v *HybridVerifier) Verify(ctx context.Context, prompt, candidate string, metadata map[string]any) (*verdict.VerificationResult, error) {
	start := time.Now()
	name := v.task.Name

	if cached, ok := v.cache.Get(ctx, name, prompt, candidate); ok {
		return v.fromCache(cached, start), nil
	}

	key := cache.Key(name, prompt, candidate)
	flightCtx := context.WithoutCancel(ctx)
	ch := v.flights.DoChan(key.String(), func() (interface{}, error) {
		// another flight may have stored the entry since the first lookup
		if cached, ok := v.cache.Get(flightCtx, name, prompt, candidate); ok {
			return v.fromCache(cached, start), nil
		}
		return v.compute(flightCtx, key, prompt, candidate, metadata, start)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		v.metrics.Decision(name, metrics.PathError, "", time.Since(start))
		return nil, ctx.Err()
	}
	if res.Err != nil {
		v.metrics.Decision(name, metrics.PathError, "", time.Since(start))
		return nil, res.Err
	}

	result := res.Val.(*verdict.VerificationResult)
	if res.Shared {
		result = result.Clone()
	}
	return result, nil
}

func (v *HybridVerifier) fromCache(cached *verdict.VerificationResult, start time.Time) *verdict.VerificationResult {
	out := cached.Clone()
	out.Provenance = out.Provenance.WithCacheHit()
	v.logger.Debug("%s: cache hit (%s)", v.task.Name, out.Verdict)
	v.metrics.Decision(v.task.Name, metrics.PathCache, out.Verdict.String(), time.Since(start))
	return out
}

func (v *HybridVerifier) compute(ctx context.Context, key core.Fingerprint, prompt, candidate string, metadata map[string]any, start time.Time) (*verdict.VerificationResult, error) {
	task := v.task
	decisionID := core.NewDecisionID()
	extra := map[string]any{verdict.ExtraDecisionID: decisionID.String()}

	passed, ruleDiag, err := task.Rule.Check(ctx, candidate, metadata)
	if err != nil {
		v.logger.Debug("%s: rule %s failed: %v", task.Name, task.Rule.Name(), err)
		return nil, err
	}
	if ruleDiag == nil {
		ruleDiag = map[string]any{}
	}
	provenance := verdict.NewProvenance(task.Name, task.Rule.Name(), passed, task.ModelName(), extra)

	var result *verdict.VerificationResult
	path := metrics.PathRule
	switch {
	case passed:
		result = &verdict.VerificationResult{
			Verdict:     verdict.Pass,
			Score:       1.0,
			Provenance:  provenance,
			Diagnostics: map[string]any{DiagRule: ruleDiag},
		}

	case task.Judge == nil:
		path = metrics.PathNoJudge
		result = &verdict.VerificationResult{
			Verdict:     verdict.Fail,
			Score:       0.0,
			Provenance:  provenance,
			Diagnostics: map[string]any{DiagRule: ruleDiag},
		}

	default:
		path = metrics.PathJudge
		raw, err := task.Judge.Score(ctx, prompt, candidate, metadata)
		if err != nil {
			v.logger.Debug("%s: judge %s failed: %v", task.Name, task.Judge.Name(), err)
			return nil, err
		}
		v.metrics.JudgeScore(task.Name, task.Judge.Name(), raw)

		score := raw
		if task.Calibrator != nil {
			features := LengthFeatures(prompt, candidate)
			score = Clamp01(task.Calibrator.Predict(raw, features))
		}

		outcome := verdict.Fail
		if score >= task.JudgeMin() {
			outcome = verdict.Pass
		}
		result = &verdict.VerificationResult{
			Verdict:    outcome,
			Score:      score,
			Provenance: provenance.WithJudge(raw),
			Diagnostics: map[string]any{
				DiagRule:       ruleDiag,
				DiagJudgeScore: raw,
			},
		}
	}

	if err := v.cache.Set(ctx, task.Name, prompt, candidate, result); err != nil {
		return nil, fmt.Errorf("cache %s decision %s: %w", task.Name, key, err)
	}
	v.record(ctx, key, decisionID, prompt, candidate, result)

	v.logger.Debug("%s: %s via %s (score=%.4f, decision=%s)", task.Name, result.Verdict, path, result.Score, decisionID)
	v.metrics.Decision(task.Name, path, result.Verdict.String(), time.Since(start))
	return result, nil
}

func (v *HybridVerifier) record(ctx context.Context, key core.Fingerprint, id core.DecisionID, prompt, candidate string, result *verdict.VerificationResult) {
	if v.ledger == nil {
		return
	}
	decision := ports.Decision{
		ID:          id,
		Fingerprint: key,
		Prompt:      prompt,
		Candidate:   candidate,
		Result:      *result.Clone(),
	}
	if err := v.ledger.Record(ctx, decision); err != nil {
		v.logger.Warn("%s: ledger record %s failed: %v", v.task.Name, id, err)
		v.metrics.LedgerError()
	}
}

// LengthFeatures derives the calibrator features: whitespace token counts of
// prompt and candidate
func LengthFeatures(prompt, candidate string) map[string]float64 {
	return map[string]float64{
		FeaturePromptLength:    float64(len(strings.Fields(prompt))),
		FeatureCandidateLength: float64(len(strings.Fields(candidate))),
	}
}

// Clamp01 limits x to [0, 1]; NaN maps to 0
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
