package reward

import (
	"context"
	"testing"

	"hvt/domain/core"
	"hvt/domain/verdict"
	"hvt/internal/builtins"
	"hvt/internal/orchestrator"
	"hvt/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gsm8kAdapter(t *testing.T) *Adapter {
	t.Helper()
	reg := registry.New()
	require.NoError(t, builtins.RegisterBuiltinTasks(reg, ""))
	v, err := orchestrator.New(reg, builtins.TaskGSM8K)
	require.NoError(t, err)
	return NewAdapter(v)
}

func ref(answer string) map[string]any {
	return map[string]any{"reference_answer": answer}
}

func TestRewards_InOrder(t *testing.T) {
	a := gsm8kAdapter(t)
	a.Concurrency = 2

	prompts := []string{"1+1", "2+2", "3+3", "4+4"}
	candidates := []string{"2", "5", "6", "9"}
	metadata := []map[string]any{ref("2"), ref("4"), ref("6"), ref("8")}

	records, err := a.Rewards(context.Background(), prompts, candidates, metadata)
	require.NoError(t, err)
	require.Len(t, records, 4)

	want := []float64{1, 0, 1, 0}
	for i, r := range records {
		assert.Equal(t, want[i], r.Reward, "sample %d", i)
		assert.Equal(t, builtins.TaskGSM8K, r.Metadata.Provenance.TaskName)
	}
	assert.Equal(t, verdict.Pass, records[0].Metadata.Verdict)
	assert.Equal(t, 1.0, records[0].Metadata.Score)
}

func TestRewards_CustomRewards(t *testing.T) {
	a := gsm8kAdapter(t)
	a.PassReward = 2
	a.FailReward = -1

	records, err := a.Rewards(context.Background(), []string{"p", "p"}, []string{"1", "2"},
		[]map[string]any{ref("1"), ref("1")})
	require.NoError(t, err)
	assert.Equal(t, 2.0, records[0].Reward)
	assert.Equal(t, -1.0, records[1].Reward)
}

func TestRewards_LengthMismatch(t *testing.T) {
	a := gsm8kAdapter(t)
	_, err := a.Rewards(context.Background(), []string{"p"}, []string{"1", "2"}, nil)
	assert.Error(t, err)

	_, err = a.Rewards(context.Background(), []string{"p"}, []string{"1"}, []map[string]any{})
	assert.Error(t, err)
}

func TestRewards_VerificationErrorFailsBatch(t *testing.T) {
	a := gsm8kAdapter(t)
	_, err := a.Rewards(context.Background(), []string{"p", "q"}, []string{"1", "2"}, nil)
	require.Error(t, err)
	assert.True(t, core.IsRuleFailure(err))
}

func TestFromSamples(t *testing.T) {
	a := gsm8kAdapter(t)
	rewards, err := a.FromSamples(context.Background(), []Sample{
		{Prompt: "1+1", Completion: "2", Metadata: ref("2")},
		{Prompt: "2+2", Response: "4", Metadata: ref("4")},
		{Prompt: "3+3", Completion: "7", Response: "6", Metadata: ref("6")},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0}, rewards)
}

func TestFromSamples_Empty(t *testing.T) {
	rewards, err := gsm8kAdapter(t).FromSamples(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rewards)
}
