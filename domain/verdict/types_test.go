package verdict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenance_WithJudgeKeepsInvariant(t *testing.T) {
	base := NewProvenance("gsm8k", "numeric_match", false, "static-judge", nil)
	require.NoError(t, base.Validate())
	assert.False(t, base.ModelInvoked)
	assert.Nil(t, base.ModelConfidence)

	judged := base.WithJudge(0.91)
	require.NoError(t, judged.Validate())
	assert.True(t, judged.ModelInvoked)
	require.NotNil(t, judged.ModelConfidence)
	assert.Equal(t, 0.91, *judged.ModelConfidence)

	// the original value is untouched
	assert.False(t, base.ModelInvoked)
	assert.Nil(t, base.ModelConfidence)
}

func TestProvenance_WithCacheHitCopiesExtra(t *testing.T) {
	extra := map[string]any{ExtraDecisionID: "0190b5c2-0000-7000-8000-000000000000"}
	p := NewProvenance("t", "r", true, "", extra)
	extra["mutated"] = true

	hit := p.WithCacheHit()
	hit.Extra["later"] = 1

	assert.True(t, hit.CacheHit)
	assert.False(t, p.CacheHit)
	assert.NotContains(t, p.Extra, "mutated")
	assert.NotContains(t, p.Extra, "later")
	assert.Equal(t, "0190b5c2-0000-7000-8000-000000000000", p.DecisionID().String())
}

func TestEncodeDecode_PersistedLayout(t *testing.T) {
	p := NewProvenance("gsm8k", "numeric_match", false, "static-judge", nil).WithJudge(0.5)
	result := &VerificationResult{
		Verdict:     Fail,
		Score:       0.5,
		Provenance:  p,
		Diagnostics: map[string]any{"judge_score": 0.5},
	}

	data, err := Encode(result)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FAIL", raw["verdict"])
	prov := raw["provenance"].(map[string]any)
	for _, field := range []string{"task_name", "rule_name", "rule_passed", "model_name",
		"model_invoked", "model_confidence", "cache_hit", "timestamp", "extra"} {
		assert.Contains(t, prov, field)
	}

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Fail, decoded.Verdict)
	assert.Equal(t, 0.5, decoded.Score)
	assert.Equal(t, "static-judge", *decoded.Provenance.ModelName)
	assert.True(t, decoded.Provenance.Timestamp.Time().Equal(p.Timestamp.Time()))
}

func TestDecode_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        "{{{",
		"unknown verdict": `{"verdict":"MAYBE","score":1,"provenance":{"task_name":"t","timestamp":"2024-01-01T00:00:00Z"}}`,
		"no provenance":   `{"verdict":"PASS","score":1}`,
		"broken invariant": `{"verdict":"PASS","score":1,"provenance":{"task_name":"t","model_invoked":true,
			"timestamp":"2024-01-01T00:00:00Z"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.Error(t, err)
		})
	}
}
