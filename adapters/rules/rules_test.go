package rules

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"hvt/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleNames(t *testing.T) {
	assert.Equal(t, "gsm8k_exact_match", NewNumericMatch().Name())
	assert.Equal(t, "sympy_equivalence", NewExpressionEquivalence().Name())
	assert.Equal(t, "LogicSATRule", NewLogicSAT().Name())
	assert.Equal(t, "PythonUnitTestRule", NewPythonUnitTest().Name())
}

func TestNumericMatch(t *testing.T) {
	rule := NewNumericMatch()
	tests := []struct {
		name      string
		candidate string
		reference any
		want      bool
		candNorm  string
	}{
		{"number in text", "12 apples", "12", true, "12"},
		{"mismatch", "13", "12", false, "13"},
		{"thousands separator", "The answer is 1,234.", "1234", true, "1234"},
		{"fraction", "3/4 of the pie", "3/4", true, "3/4"},
		{"negative decimal", "-2.5 degrees", "-2.5", true, "-2.5"},
		{"no number falls back to text", "  twelve ", "twelve", true, "twelve"},
		{"numeric reference", "42", float64(42), true, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, diag, err := rule.Check(context.Background(), tt.candidate,
				map[string]any{MetaReferenceAnswer: tt.reference})
			require.NoError(t, err)
			assert.Equal(t, tt.want, passed)
			assert.Equal(t, tt.candNorm, diag["candidate_normalized"])
		})
	}
}

func TestNumericMatch_MissingReference(t *testing.T) {
	for _, metadata := range []map[string]any{nil, {}, {MetaReferenceAnswer: "   "}} {
		_, _, err := NewNumericMatch().Check(context.Background(), "12", metadata)
		require.Error(t, err)
		assert.True(t, core.IsRuleFailure(err))
	}
}

func TestExpressionEquivalence(t *testing.T) {
	rule := NewExpressionEquivalence()
	tests := []struct {
		candidate string
		reference string
		want      bool
	}{
		{"2*x + 3", "3 + x*2", true},
		{"(x+1)^2", "x**2 + 2*x + 1", true},
		{"2x + 2", "2(x + 1)", true},
		{"x*y - y*x", "0", true},
		{"sin(x)^2 + cos(x)^2", "1", true},
		{"x/2", "0.5*x", true},
		{"-x^2", "-(x^2)", true},
		{"2^-1", "0.5", true},
		{"x + 1", "x + 2", false},
		{"x^2", "x", false},
		{"a + b", "a - b", false},
	}
	for _, tt := range tests {
		t.Run(tt.candidate+" vs "+tt.reference, func(t *testing.T) {
			passed, diag, err := rule.Check(context.Background(), tt.candidate,
				map[string]any{MetaReferenceExpression: tt.reference})
			require.NoError(t, err)
			assert.Equal(t, tt.want, passed, "diagnostics: %v", diag)
			assert.NotContains(t, diag, "error")
		})
	}
}

func TestExpressionEquivalence_ParseErrorIsFailedCheck(t *testing.T) {
	passed, diag, err := NewExpressionEquivalence().Check(context.Background(), "x +* (",
		map[string]any{MetaReferenceExpression: "x"})
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Contains(t, diag, "error")

	_, _, err = NewExpressionEquivalence().Check(context.Background(), "x", nil)
	assert.True(t, core.IsRuleFailure(err))
}

func TestParseExpression_String(t *testing.T) {
	tests := map[string]string{
		"2x+1":      "2 * x + 1",
		"a-(b-c)":   "a - (b - c)",
		"(a+b)*c":   "(a + b) * c",
		"x^2^3":     "x**2**3",
		"(x^2)^3":   "(x**2)**3",
		"sqrt(x)/y": "sqrt(x) / y",
	}
	for src, want := range tests {
		e, err := ParseExpression(src)
		require.NoError(t, err, src)
		assert.Equal(t, want, e.String(), src)
	}

	e, err := ParseExpression("x^2^3")
	require.NoError(t, err)
	assert.Equal(t, 256.0, Eval(e, map[string]float64{"x": 2}))
}

func TestLogicSAT(t *testing.T) {
	rule := NewLogicSAT()
	tests := []struct {
		name        string
		candidate   string
		constraints any
		want        bool
		wantErrDiag bool
	}{
		{"function syntax", "x=True y=False", []any{"Or(x, y)", "Not(y)"}, true, false},
		{"operator syntax", "x=True, y=False", []string{"x | y", "~y", "x & ~y"}, true, false},
		{"violated", "x=False y=False", []any{"Or(x, y)"}, false, false},
		{"implies", "a=1 b=0", []any{"Implies(a, b)"}, false, false},
		{"shift implies", "a=0 b=0", []any{"a >> b"}, true, false},
		{"xor", "a=t b=f", []any{"Xor(a, b)", "a ^ b"}, true, false},
		{"literals", "a=true", []any{"And(a, True)", "~False"}, true, false},
		{"no assignments", "I think x is true", []any{"x"}, false, true},
		{"unassigned variable", "x=True", []any{"And(x, z)"}, false, true},
		{"bad syntax", "x=True", []any{"x &"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, diag, err := rule.Check(context.Background(), tt.candidate,
				map[string]any{MetaConstraints: tt.constraints})
			require.NoError(t, err)
			assert.Equal(t, tt.want, passed, "diagnostics: %v", diag)
			if tt.wantErrDiag {
				assert.Contains(t, diag, "error")
			} else {
				assert.Contains(t, diag, "assignment")
			}
		})
	}
}

func TestLogicSAT_RequiresConstraints(t *testing.T) {
	for _, constraints := range []any{nil, []any{}, "x & y"} {
		_, _, err := NewLogicSAT().Check(context.Background(), "x=True",
			map[string]any{MetaConstraints: constraints})
		assert.True(t, core.IsRuleFailure(err))
	}
}

func TestLogicSAT_DecodedJSONMetadata(t *testing.T) {
	var metadata map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"constraints":["And(p, Not(q))"]}`), &metadata))
	passed, _, err := NewLogicSAT().Check(context.Background(), "p=True q=False", metadata)
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestParseAssignment(t *testing.T) {
	got, err := ParseAssignment("x=True, y=0 z=T noise")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"x": true, "y": false, "z": true}, got)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestPythonUnitTest(t *testing.T) {
	requirePython(t)
	tests := `
class T(unittest.TestCase):
    def test_add(self):
        self.assertEqual(add(2, 3), 5)
`
	rule := NewPythonUnitTest()

	passed, diag, err := rule.Check(context.Background(), "def add(a, b):\n    return a + b",
		map[string]any{MetaTestsCode: "import unittest\n" + tests})
	require.NoError(t, err)
	assert.True(t, passed, "stderr: %v", diag["stderr"])
	assert.Equal(t, 0, diag["returncode"])

	passed, diag, err = rule.Check(context.Background(), "def add(a, b):\n    return a - b",
		map[string]any{MetaTestsCode: "import unittest\n" + tests})
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Equal(t, 1, diag["returncode"])
}

func TestPythonUnitTest_Timeout(t *testing.T) {
	requirePython(t)
	rule := &PythonUnitTest{Timeout: 200 * time.Millisecond, PythonBin: "python3"}
	_, _, err := rule.Check(context.Background(), "import time\ntime.sleep(5)",
		map[string]any{MetaTestsCode: "import unittest"})
	require.Error(t, err)
	assert.True(t, core.IsRuleFailure(err))
}

func TestPythonUnitTest_RequiresTests(t *testing.T) {
	_, _, err := NewPythonUnitTest().Check(context.Background(), "x = 1", map[string]any{})
	assert.True(t, core.IsRuleFailure(err))
}
