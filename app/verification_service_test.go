package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hvt/adapters/judges"
	"hvt/adapters/rules"
	"hvt/domain/core"
	"hvt/domain/verdict"
	"hvt/internal/builtins"
	"hvt/internal/registry"
	"hvt/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, opts ...ServiceOption) (*VerificationService, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, builtins.RegisterBuiltinTasks(reg, ""))
	return NewVerificationService(reg, opts...), reg
}

func TestVerificationService_VerifyByName(t *testing.T) {
	svc, _ := newService(t)
	result, err := svc.Verify(context.Background(), builtins.TaskGSM8K, "What is 5+7?", "12",
		map[string]any{"reference_answer": "12"})
	require.NoError(t, err)
	assert.Equal(t, verdict.Pass, result.Verdict)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, rules.NameNumericMatch, result.Provenance.RuleName)
}

func TestVerificationService_UnknownTask(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Verify(context.Background(), "nope", "p", "c", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestVerificationService_MemoizesVerifiers(t *testing.T) {
	svc, reg := newService(t)
	first, err := svc.Verifier(builtins.TaskLogicSAT)
	require.NoError(t, err)
	second, err := svc.Verifier(builtins.TaskLogicSAT)
	require.NoError(t, err)
	assert.Same(t, first, second)

	require.NoError(t, reg.Register(builtins.TaskLogicSAT, &testkit.CountingRule{RuleName: "replaced"}))
	fresh, err := svc.Verifier(builtins.TaskLogicSAT)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, "replaced", fresh.Task().Rule.Name())
}

func TestVerificationService_ReregistrationTakesEffect(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()
	md := map[string]any{"reference_answer": "12"}

	result, err := svc.Verify(ctx, builtins.TaskGSM8K, "What is 5+7?", "13", md)
	require.NoError(t, err)
	assert.Equal(t, verdict.Fail, result.Verdict)

	require.NoError(t, reg.Register(builtins.TaskGSM8K, &testkit.CountingRule{RuleName: "lenient", Passed: true}))
	result, err = svc.Verify(ctx, builtins.TaskGSM8K, "What is 5+7?", "13", md)
	require.NoError(t, err)
	assert.Equal(t, verdict.Pass, result.Verdict)
	assert.Equal(t, "lenient", result.Provenance.RuleName)
}

func TestVerificationService_ClearedTaskIsNotFound(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()
	md := map[string]any{"reference_answer": "12"}

	_, err := svc.Verify(ctx, builtins.TaskGSM8K, "What is 5+7?", "12", md)
	require.NoError(t, err)

	reg.Clear()
	_, err = svc.Verify(ctx, builtins.TaskGSM8K, "What is 5+7?", "12", md)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	_, err = svc.Verifier(builtins.TaskGSM8K)
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestVerificationService_CacheDirOverride(t *testing.T) {
	dir := t.TempDir()
	svc, _ := newService(t, WithCacheDir(dir))

	_, err := svc.Verify(context.Background(), builtins.TaskGSM8K, "p", "3", map[string]any{"reference_answer": "3"})
	require.NoError(t, err)

	key := core.ComputeFingerprint(builtins.TaskGSM8K, "p", "3")
	_, err = os.Stat(filepath.Join(dir, key.String()+".json"))
	assert.NoError(t, err)

	again, err := svc.Verify(context.Background(), builtins.TaskGSM8K, "p", "3", map[string]any{"reference_answer": "3"})
	require.NoError(t, err)
	assert.True(t, again.Provenance.CacheHit)
}

func TestVerificationService_SharedStoreAndLedger(t *testing.T) {
	store := testkit.NewMapStore()
	ledger := testkit.NewInMemoryLedger()
	svc, reg := newService(t, WithResultStore(store), WithDecisionLedger(ledger))
	require.NoError(t, reg.Register("judged", &testkit.CountingRule{RuleName: "never"},
		registry.WithJudge(judges.NewStaticJudge(0.9))))

	ctx := context.Background()
	_, err := svc.Verify(ctx, "judged", "p", "c", nil)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, builtins.TaskGSM8K, "p", "1", map[string]any{"reference_answer": "2"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "judged", "p", "c", nil)
	require.NoError(t, err)

	assert.Len(t, store.Keys(), 2)

	all, err := svc.Decisions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	judged, err := svc.Decisions(ctx, "judged", 10)
	require.NoError(t, err)
	require.Len(t, judged, 1)
	assert.Equal(t, verdict.Pass, judged[0].Result.Verdict)
}

func TestVerificationService_DecisionsWithoutLedger(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Decisions(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrNoLedger)
}

func TestVerificationService_Tasks(t *testing.T) {
	svc, reg := newService(t)
	require.NoError(t, reg.Register("judged", &testkit.CountingRule{RuleName: "r"},
		registry.WithJudge(judges.NewStaticJudge(0.5)),
		registry.WithThresholds(map[string]float64{"judge_min": 0.6})))

	tasks := svc.Tasks()
	require.Len(t, tasks, 5)
	assert.Equal(t, builtins.TaskCodeExec, tasks[0].Name)

	var judged TaskInfo
	for _, info := range tasks {
		if info.Name == "judged" {
			judged = info
		}
	}
	assert.Equal(t, "static-judge", judged.Judge)
	assert.Equal(t, 0.6, judged.JudgeMin)
	assert.False(t, judged.Calibrated)
}
