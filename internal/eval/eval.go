// Package eval scores a verifier against labelled datasets.
package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/montanaflynn/stats"

	"hvt/domain/verdict"
	"hvt/ports"
)

// Metrics is the confusion matrix of PASS verdicts against labels
type Metrics struct {
	Total         int
	TruePositive  int
	FalsePositive int
	TrueNegative  int
	FalseNegative int
}

func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom
}

func (m Metrics) Precision() float64 {
	return safeDiv(float64(m.TruePositive), float64(m.TruePositive+m.FalsePositive))
}

func (m Metrics) Recall() float64 {
	return safeDiv(float64(m.TruePositive), float64(m.TruePositive+m.FalseNegative))
}

func (m Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	return safeDiv(2*p*r, p+r)
}

func (m Metrics) Accuracy() float64 {
	return safeDiv(float64(m.TruePositive+m.TrueNegative), float64(m.Total))
}

// MarshalJSON emits the counts and the derived rates
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"total":     m.Total,
		"tp":        m.TruePositive,
		"fp":        m.FalsePositive,
		"tn":        m.TrueNegative,
		"fn":        m.FalseNegative,
		"precision": m.Precision(),
		"recall":    m.Recall(),
		"f1":        m.F1(),
		"accuracy":  m.Accuracy(),
	})
}

func (m *Metrics) add(label, passed bool) {
	m.Total++
	switch {
	case label && passed:
		m.TruePositive++
	case label && !passed:
		m.FalseNegative++
	case !label && passed:
		m.FalsePositive++
	default:
		m.TrueNegative++
	}
}

// ScoreSummary describes the distribution of verification scores
type ScoreSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// SummarizeScores returns the zero summary for no scores
func SummarizeScores(scores []float64) (ScoreSummary, error) {
	if len(scores) == 0 {
		return ScoreSummary{}, nil
	}
	data := stats.Float64Data(scores)
	var s ScoreSummary
	var err error
	if s.Mean, err = data.Mean(); err != nil {
		return ScoreSummary{}, err
	}
	if s.Median, err = data.Median(); err != nil {
		return ScoreSummary{}, err
	}
	if s.P90, err = data.Percentile(90); err != nil {
		return ScoreSummary{}, err
	}
	if s.Min, err = data.Min(); err != nil {
		return ScoreSummary{}, err
	}
	if s.Max, err = data.Max(); err != nil {
		return ScoreSummary{}, err
	}
	return s, nil
}

// Report is the full outcome of one evaluation run
type Report struct {
	Task       string       `json:"task"`
	Metrics    Metrics      `json:"metrics"`
	Scores     ScoreSummary `json:"scores"`
	RulePasses int          `json:"rule_passes"`
	JudgeCalls int          `json:"judge_calls"`
	CacheHits  int          `json:"cache_hits"`
}

// Evaluate verifies every example and tallies the confusion matrix.
// Verification errors abort the run.
func Evaluate(ctx context.Context, verifier ports.Verifier, dataset []Example) (Metrics, error) {
	report, err := Run(ctx, "", verifier, dataset)
	if err != nil {
		return Metrics{}, err
	}
	return report.Metrics, nil
}

// Run evaluates the dataset and also summarizes scores and decision paths
func Run(ctx context.Context, task string, verifier ports.Verifier, dataset []Example) (*Report, error) {
	report := &Report{Task: task}
	scores := make([]float64, 0, len(dataset))
	for i, ex := range dataset {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := verifier.Verify(ctx, ex.Prompt, ex.Candidate, ex.Metadata)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		report.Metrics.add(ex.Label, result.Verdict == verdict.Pass)
		scores = append(scores, result.Score)
		if result.Provenance.RulePassed {
			report.RulePasses++
		}
		if result.Provenance.CacheHit {
			report.CacheHits++
		} else if result.Provenance.ModelInvoked {
			report.JudgeCalls++
		}
	}
	summary, err := SummarizeScores(scores)
	if err != nil {
		return nil, err
	}
	report.Scores = summary
	return report, nil
}

// FalsePositiveReport counts adversarial candidates that were accepted
type FalsePositiveReport struct {
	FalsePositiveRate float64 `json:"false_positive_rate"`
	Total             int     `json:"total"`
	Accepted          []int   `json:"accepted,omitempty"`
}

// RunFalsePositiveSuite verifies known-wrong candidates for one prompt and
// reports the fraction that received PASS
func RunFalsePositiveSuite(ctx context.Context, verifier ports.Verifier, prompt string, adversarial []string, metadata map[string]any) (FalsePositiveReport, error) {
	report := FalsePositiveReport{Total: len(adversarial)}
	for i, sample := range adversarial {
		result, err := verifier.Verify(ctx, prompt, sample, metadata)
		if err != nil {
			return FalsePositiveReport{}, fmt.Errorf("adversarial sample %d: %w", i, err)
		}
		if result.Verdict == verdict.Pass {
			report.Accepted = append(report.Accepted, i)
		}
	}
	report.FalsePositiveRate = safeDiv(float64(len(report.Accepted)), float64(report.Total))
	return report, nil
}
