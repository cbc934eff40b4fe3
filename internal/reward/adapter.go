// Package reward turns verification verdicts into scalar RL rewards.
package reward

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"hvt/domain/verdict"
	"hvt/ports"
)

// DefaultConcurrency bounds parallel verifications in one batch
const DefaultConcurrency = 8

// Record is the reward for one completion together with its verdict
type Record struct {
	Reward   float64        `json:"reward"`
	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata carries the verification outcome behind a reward
type RecordMetadata struct {
	Score      float64            `json:"score"`
	Verdict    verdict.Verdict    `json:"verdict"`
	Provenance verdict.Provenance `json:"provenance"`
}

// Adapter maps PASS to PassReward and anything else to FailReward
type Adapter struct {
	verifier    ports.Verifier
	PassReward  float64
	FailReward  float64
	Concurrency int
}

// NewAdapter creates an adapter paying 1.0 for PASS and 0.0 otherwise
func NewAdapter(verifier ports.Verifier) *Adapter {
	return &Adapter{
		verifier:    verifier,
		PassReward:  1.0,
		FailReward:  0.0,
		Concurrency: DefaultConcurrency,
	}
}

// Rewards verifies each (prompt, candidate) pair and returns one record per
// pair in input order. metadata may be nil; otherwise it must match prompts
// in length. The first verification error cancels the batch.
func (a *Adapter) Rewards(ctx context.Context, prompts, candidates []string, metadata []map[string]any) ([]Record, error) {
	if len(prompts) != len(candidates) {
		return nil, fmt.Errorf("got %d prompts and %d candidates", len(prompts), len(candidates))
	}
	if metadata != nil && len(metadata) != len(prompts) {
		return nil, fmt.Errorf("got %d metadata entries for %d prompts", len(metadata), len(prompts))
	}

	records := make([]Record, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g.SetLimit(limit)

	for i := range prompts {
		g.Go(func() error {
			var md map[string]any
			if metadata != nil {
				md = metadata[i]
			}
			result, err := a.verifier.Verify(gctx, prompts[i], candidates[i], md)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			records[i] = a.record(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *Adapter) record(result *verdict.VerificationResult) Record {
	reward := a.FailReward
	if result.Verdict == verdict.Pass {
		reward = a.PassReward
	}
	return Record{
		Reward: reward,
		Metadata: RecordMetadata{
			Score:      result.Score,
			Verdict:    result.Verdict,
			Provenance: result.Provenance,
		},
	}
}

// Sample is one generated completion as handed over by a trainer
type Sample struct {
	Prompt     string         `json:"prompt"`
	Completion string         `json:"completion,omitempty"`
	Response   string         `json:"response,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Text is the completion, or the response when no completion is set
func (s Sample) Text() string {
	if s.Completion != "" {
		return s.Completion
	}
	return s.Response
}

// FromSamples scores trainer samples and returns only the scalar rewards
func (a *Adapter) FromSamples(ctx context.Context, samples []Sample) ([]float64, error) {
	prompts := make([]string, len(samples))
	candidates := make([]string, len(samples))
	metadata := make([]map[string]any, len(samples))
	for i, s := range samples {
		prompts[i] = s.Prompt
		candidates[i] = s.Text()
		metadata[i] = s.Metadata
	}
	records, err := a.Rewards(ctx, prompts, candidates, metadata)
	if err != nil {
		return nil, err
	}
	rewards := make([]float64, len(records))
	for i, r := range records {
		rewards[i] = r.Reward
	}
	return rewards, nil
}
