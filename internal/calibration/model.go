package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"hvt/domain/core"
)

// DefaultL2 is the ridge penalty used when none is given
const DefaultL2 = 0.1

// Example is one labelled judge observation
type Example struct {
	JudgeScore float64            `json:"judge_score"`
	HumanScore float64            `json:"human_score"`
	Features   map[string]float64 `json:"features"`
}

// Model is an affine correction over named features.
// FeatureOrder fixes which feature names are read and in what order.
type Model struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	FeatureOrder []string  `json:"feature_order"`
}

type fitConfig struct {
	l2 float64
}

// FitOption configures Fit
type FitOption func(*fitConfig)

// WithL2 sets the ridge penalty
func WithL2(lambda float64) FitOption {
	return func(c *fitConfig) {
		c.l2 = lambda
	}
}

// Fit solves w = (XᵀX + λI)⁻¹ Xᵀy over the sorted union of feature names and
// sets the bias to the mean residual y - Xw
func Fit(examples []Example, opts ...FitOption) (*Model, error) {
	if len(examples) == 0 {
		return nil, core.ErrNoExamples
	}
	cfg := fitConfig{l2: DefaultL2}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.l2 < 0 || math.IsNaN(cfg.l2) {
		return nil, fmt.Errorf("%w: l2 penalty must be non-negative, got %v", core.ErrInvalidArgument, cfg.l2)
	}

	order := featureOrder(examples)
	n, k := len(examples), len(order)

	y := make([]float64, n)
	for i, ex := range examples {
		y[i] = ex.HumanScore
	}

	if k == 0 {
		bias, err := stats.Mean(y)
		if err != nil {
			return nil, err
		}
		return &Model{Weights: []float64{}, Bias: bias, FeatureOrder: order}, nil
	}

	X := mat.NewDense(n, k, nil)
	for i, ex := range examples {
		for j, name := range order {
			X.Set(i, j, ex.Features[name])
		}
	}
	Y := mat.NewVecDense(n, y)

	var gram mat.Dense
	gram.Mul(X.T(), X)
	for j := 0; j < k; j++ {
		gram.Set(j, j, gram.At(j, j)+cfg.l2)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var w mat.VecDense
	if err := w.SolveVec(&gram, &xty); err != nil {
		return nil, fmt.Errorf("solve ridge system: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &w)
	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = y[i] - fitted.AtVec(i)
	}
	bias, err := stats.Mean(residuals)
	if err != nil {
		return nil, err
	}

	weights := make([]float64, k)
	for j := range weights {
		weights[j] = w.AtVec(j)
	}
	return &Model{Weights: weights, Bias: bias, FeatureOrder: order}, nil
}

func featureOrder(examples []Example) []string {
	seen := make(map[string]struct{})
	for _, ex := range examples {
		for name := range ex.Features {
			seen[name] = struct{}{}
		}
	}
	order := make([]string, 0, len(seen))
	for name := range seen {
		order = append(order, name)
	}
	sort.Strings(order)
	return order
}

// Predict computes w·x + bias over FeatureOrder. The judge score is not an
// input unless the caller passes it as a feature.
func (m *Model) Predict(judgeScore float64, features map[string]float64) float64 {
	out := m.Bias
	for j, name := range m.FeatureOrder {
		if j >= len(m.Weights) {
			break
		}
		out += m.Weights[j] * features[name]
	}
	return out
}

// FitReport summarizes in-sample error of a fitted model
type FitReport struct {
	Examples     int     `json:"examples"`
	RMSE         float64 `json:"rmse"`
	MAE          float64 `json:"mae"`
	MeanResidual float64 `json:"mean_residual"`
	RawMAE       float64 `json:"raw_mae"`
}

// Evaluate scores the model against labelled examples. RawMAE is the error of
// the uncalibrated judge score, for comparison.
func (m *Model) Evaluate(examples []Example) (FitReport, error) {
	if len(examples) == 0 {
		return FitReport{}, core.ErrNoExamples
	}
	residuals := make([]float64, len(examples))
	sqErr := make([]float64, len(examples))
	absErr := make([]float64, len(examples))
	rawAbsErr := make([]float64, len(examples))
	for i, ex := range examples {
		residuals[i] = ex.HumanScore - m.Predict(ex.JudgeScore, ex.Features)
		sqErr[i] = residuals[i] * residuals[i]
		absErr[i] = math.Abs(residuals[i])
		rawAbsErr[i] = math.Abs(ex.HumanScore - ex.JudgeScore)
	}

	mse, err := stats.Mean(sqErr)
	if err != nil {
		return FitReport{}, err
	}
	mae, err := stats.Mean(absErr)
	if err != nil {
		return FitReport{}, err
	}
	meanResidual, err := stats.Mean(residuals)
	if err != nil {
		return FitReport{}, err
	}
	rawMAE, err := stats.Mean(rawAbsErr)
	if err != nil {
		return FitReport{}, err
	}

	return FitReport{
		Examples:     len(examples),
		RMSE:         math.Sqrt(mse),
		MAE:          mae,
		MeanResidual: meanResidual,
		RawMAE:       rawMAE,
	}, nil
}

// Save writes the model as JSON
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write calibration model %s: %w", path, err)
	}
	return nil
}

// Load reads a model written by Save
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration model %s: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode calibration model %s: %w", path, err)
	}
	if len(m.Weights) != len(m.FeatureOrder) {
		return nil, fmt.Errorf("%w: calibration model %s has %d weights for %d features",
			core.ErrInvalidArgument, path, len(m.Weights), len(m.FeatureOrder))
	}
	return &m, nil
}

// LoadExamples reads a JSON array of examples
func LoadExamples(path string) ([]Example, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration examples %s: %w", path, err)
	}
	var examples []Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("decode calibration examples %s: %w", path, err)
	}
	return examples, nil
}
