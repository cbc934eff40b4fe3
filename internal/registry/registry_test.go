package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"hvt/domain/core"
	"hvt/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJudge string

func (j namedJudge) Name() string { return string(j) }
func (j namedJudge) Score(context.Context, string, string, map[string]any) (float64, error) {
	return 0.5, nil
}

func alwaysPass(name string) ports.Rule {
	return ports.RuleFunc{RuleName: name, Fn: func(context.Context, string, map[string]any) (bool, map[string]any, error) {
		return true, nil, nil
	}}
}

func TestRegister_Defaults(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("gsm8k", alwaysPass("numeric_match")))

	cfg, err := reg.Resolve("gsm8k")
	require.NoError(t, err)
	assert.Equal(t, "gsm8k", cfg.Name)
	assert.Equal(t, "numeric_match", cfg.Rule.Name())
	assert.Nil(t, cfg.Judge)
	assert.Nil(t, cfg.Calibrator)
	assert.Equal(t, DefaultJudgeMin, cfg.JudgeMin())
	assert.Equal(t, map[string]float64{"judge_min": 0.8}, cfg.Thresholds())
	assert.Empty(t, cfg.CacheDir)
	assert.Empty(t, cfg.ModelName())
}

func TestRegister_EmptyName(t *testing.T) {
	reg := New()
	err := reg.Register("", alwaysPass("r"))
	require.Error(t, err)
	assert.True(t, core.IsInvalidArgument(err))
	assert.Empty(t, reg.Names())
}

func TestRegister_WhitespaceNameIsKeptVerbatim(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("   ", alwaysPass("r")))

	cfg, err := reg.Resolve("   ")
	require.NoError(t, err)
	assert.Equal(t, "   ", cfg.Name)
	assert.False(t, reg.Has(""))
}

func TestRegister_NilRule(t *testing.T) {
	err := New().Register("t", nil)
	assert.True(t, core.IsInvalidArgument(err))
}

func TestRegister_LastWriteWins(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("t", alwaysPass("first"),
		WithJudge(namedJudge("judge-a")),
		WithThresholds(map[string]float64{"judge_min": 0.6, "extra": 1})))
	require.NoError(t, reg.Register("t", alwaysPass("second")))

	cfg, err := reg.Resolve("t")
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Rule.Name())
	assert.Nil(t, cfg.Judge, "replacement does not merge with the previous entry")
	_, ok := cfg.Threshold("extra")
	assert.False(t, ok)
	assert.Equal(t, 0.8, cfg.JudgeMin())
}

func TestRegister_ThresholdsAreCopied(t *testing.T) {
	thresholds := map[string]float64{"judge_min": 0.7}
	reg := New()
	require.NoError(t, reg.Register("t", alwaysPass("r"), WithThresholds(thresholds)))
	thresholds["judge_min"] = 0.1

	cfg, _ := reg.Resolve("t")
	assert.Equal(t, 0.7, cfg.JudgeMin())

	cfg.Thresholds()["judge_min"] = 0.2
	again, _ := reg.Resolve("t")
	assert.Equal(t, 0.7, again.JudgeMin())
}

func TestRegister_ThresholdsWithoutJudgeMin(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("t", alwaysPass("r"), WithThresholds(map[string]float64{"other": 0.3})))
	cfg, _ := reg.Resolve("t")
	assert.Equal(t, 0.8, cfg.JudgeMin())
}

func TestResolve_UnknownAndClear(t *testing.T) {
	reg := New()
	_, err := reg.Resolve("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
	assert.True(t, core.IsNotFoundError(err))

	require.NoError(t, reg.Register("a", alwaysPass("r")))
	require.NoError(t, reg.Register("b", alwaysPass("r")))
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	reg.Clear()
	_, err = reg.Resolve("a")
	assert.True(t, core.IsNotFoundError(err))
	assert.Empty(t, reg.Names())
	assert.False(t, reg.Has("b"))
}

func TestGeneration(t *testing.T) {
	reg := New()
	start := reg.Generation()

	require.NoError(t, reg.Register("t", alwaysPass("r")))
	afterRegister := reg.Generation()
	assert.Greater(t, afterRegister, start)

	require.Error(t, reg.Register("", alwaysPass("r")))
	assert.Equal(t, afterRegister, reg.Generation())

	reg.Clear()
	assert.Greater(t, reg.Generation(), afterRegister)
}

func TestRegistriesAreIsolated(t *testing.T) {
	a, b := New(), New()
	require.NoError(t, a.Register("t", alwaysPass("r")))
	assert.True(t, a.Has("t"))
	assert.False(t, b.Has("t"))
}

func TestWithCacheDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~/hvt-cache", filepath.Join(home, "hvt-cache")},
		{"relative/cache", filepath.Join(wd, "relative/cache")},
		{"/abs/cache", "/abs/cache"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			reg := New()
			require.NoError(t, reg.Register("t", alwaysPass("r"), WithCacheDir(tt.in)))
			cfg, _ := reg.Resolve("t")
			assert.Equal(t, tt.want, cfg.CacheDir)
		})
	}
}

func TestModelNameFollowsJudge(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register("t", alwaysPass("r"), WithJudge(namedJudge("static-judge"))))
	cfg, _ := reg.Resolve("t")
	assert.True(t, cfg.HasJudge())
	assert.Equal(t, "static-judge", cfg.ModelName())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Register("shared", alwaysPass("r"))
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.Resolve("shared")
			_ = reg.Names()
		}()
	}
	wg.Wait()
	assert.True(t, reg.Has("shared"))
}
