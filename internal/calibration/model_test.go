package calibration

import (
	"path/filepath"
	"testing"

	"hvt/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_Empty(t *testing.T) {
	_, err := Fit(nil)
	require.Error(t, err)
	assert.True(t, core.IsInvalidArgument(err))
}

func TestFit_SingleExampleRecoversLabel(t *testing.T) {
	model, err := Fit([]Example{{JudgeScore: 0.13, HumanScore: 0.6, Features: map[string]float64{"len": 5.0}}})
	require.NoError(t, err)

	assert.Equal(t, []string{"len"}, model.FeatureOrder)
	require.Len(t, model.Weights, 1)
	assert.InDelta(t, 5*0.6/(25+DefaultL2), model.Weights[0], 1e-12)
	assert.InDelta(t, 0.6, model.Predict(0.99, map[string]float64{"len": 5.0}), 1e-9)
	assert.InDelta(t, 0.6, model.Predict(0.01, map[string]float64{"len": 5.0}), 1e-9)
}

func TestFit_FeatureOrderIsSortedUnion(t *testing.T) {
	model, err := Fit([]Example{
		{HumanScore: 0.2, Features: map[string]float64{"zeta": 1}},
		{HumanScore: 0.4, Features: map[string]float64{"alpha": 2, "mid": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, model.FeatureOrder)
	assert.Len(t, model.Weights, 3)
}

func TestFit_NoFeaturesIsMean(t *testing.T) {
	model, err := Fit([]Example{{HumanScore: 0.2}, {HumanScore: 0.4}, {HumanScore: 0.9}})
	require.NoError(t, err)
	assert.Empty(t, model.Weights)
	assert.InDelta(t, 0.5, model.Bias, 1e-12)
	assert.InDelta(t, 0.5, model.Predict(0, map[string]float64{"anything": 3}), 1e-12)
}

func TestFit_LinearRelationship(t *testing.T) {
	var examples []Example
	for i := 0; i < 20; i++ {
		x := float64(i)
		examples = append(examples, Example{HumanScore: 0.05*x + 0.1, Features: map[string]float64{"x": x}})
	}
	model, err := Fit(examples, WithL2(0))
	require.NoError(t, err)
	assert.InDelta(t, 0.05*7+0.1, model.Predict(0, map[string]float64{"x": 7}), 0.05)

	report, err := model.Evaluate(examples)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Examples)
	assert.Less(t, report.MAE, 0.05)
	assert.InDelta(t, 0, report.MeanResidual, 1e-9)
}

func TestFit_NegativeL2(t *testing.T) {
	_, err := Fit([]Example{{HumanScore: 1, Features: map[string]float64{"x": 1}}}, WithL2(-1))
	assert.True(t, core.IsInvalidArgument(err))
}

func TestPredict_UnseenAndMissingFeatures(t *testing.T) {
	model := &Model{Weights: []float64{2, 3}, Bias: 0.5, FeatureOrder: []string{"a", "b"}}

	tests := []struct {
		name     string
		features map[string]float64
		want     float64
	}{
		{"all present", map[string]float64{"a": 1, "b": 1}, 5.5},
		{"missing b defaults to zero", map[string]float64{"a": 1}, 2.5},
		{"unseen names ignored", map[string]float64{"a": 1, "b": 1, "c": 100}, 5.5},
		{"nil features", nil, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, model.Predict(0.3, tt.features), 1e-12)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	model, err := Fit([]Example{
		{HumanScore: 0.2, Features: map[string]float64{"prompt_length": 4, "candidate_length": 1}},
		{HumanScore: 0.8, Features: map[string]float64{"prompt_length": 9, "candidate_length": 3}},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, model.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.FeatureOrder, loaded.FeatureOrder)
	features := map[string]float64{"prompt_length": 6, "candidate_length": 2}
	assert.InDelta(t, model.Predict(0, features), loaded.Predict(0, features), 1e-12)

	_, err = Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
