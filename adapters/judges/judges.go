// Package judges holds the built-in probabilistic judges.
package judges

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// StaticJudge returns a fixed confidence, or its complement when Verdict is false
type StaticJudge struct {
	Confidence float64
	Verdict    bool
	ModelName  string
}

// NewStaticJudge creates a judge that always answers confidence
func NewStaticJudge(confidence float64) *StaticJudge {
	return &StaticJudge{Confidence: confidence, Verdict: true, ModelName: "static-judge"}
}

func (j *StaticJudge) Name() string {
	if j.ModelName == "" {
		return "static-judge"
	}
	return j.ModelName
}

func (j *StaticJudge) Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error) {
	if j.Verdict {
		return j.Confidence, nil
	}
	return 1.0 - j.Confidence, nil
}

// DefaultRegexWeight is the score a RegexJudge gives a matching candidate
const DefaultRegexWeight = 0.95

// RegexJudge scores Weight when the trimmed candidate fully matches Pattern, else 0
type RegexJudge struct {
	pattern   *regexp.Regexp
	Weight    float64
	ModelName string
}

// NewRegexJudge compiles pattern anchored to the whole candidate
func NewRegexJudge(pattern string, weight float64) (*RegexJudge, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("compile judge pattern %q: %w", pattern, err)
	}
	return &RegexJudge{pattern: re, Weight: weight, ModelName: "regex-judge"}, nil
}

func (j *RegexJudge) Name() string {
	if j.ModelName == "" {
		return "regex-judge"
	}
	return j.ModelName
}

func (j *RegexJudge) Score(ctx context.Context, prompt, candidate string, metadata map[string]any) (float64, error) {
	if j.pattern.MatchString(strings.TrimSpace(candidate)) {
		return j.Weight, nil
	}
	return 0.0, nil
}
