package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.Decision("gsm8k", PathRule, "PASS", time.Millisecond)
	rec.Decision("gsm8k", PathRule, "PASS", time.Millisecond)
	rec.Decision("gsm8k", PathJudge, "FAIL", time.Millisecond)
	rec.CacheLookup("hit")
	rec.CacheLookup("miss")
	rec.CacheLookup("miss")
	rec.LedgerError()
	rec.JudgeScore("gsm8k", "static", 0.4)

	assert.Equal(t, 2.0, counterValue(t, reg, "hvt_verify_decisions_total",
		map[string]string{"task": "gsm8k", "path": PathRule, "verdict": "PASS"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "hvt_verify_decisions_total",
		map[string]string{"path": PathJudge}))
	assert.Equal(t, 2.0, counterValue(t, reg, "hvt_cache_lookups_total", map[string]string{"outcome": "miss"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "hvt_ledger_errors_total", nil))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.Decision("t", PathCache, "PASS", 0)
		rec.CacheLookup("hit")
		rec.JudgeScore("t", "m", 1)
		rec.LedgerError()
	})
}
