package builtins

import (
	"fmt"
	"strings"

	"hvt/adapters/rules"
	"hvt/internal/registry"
	"hvt/ports"
)

// Built-in task names
const (
	TaskGSM8K    = "gsm8k_builtin"
	TaskMathExpr = "math_expr_builtin"
	TaskLogicSAT = "logic_sat_builtin"
	TaskCodeExec = "code_exec_builtin"
)

// TaskNames lists the built-in tasks in registration order
var TaskNames = []string{TaskGSM8K, TaskMathExpr, TaskLogicSAT, TaskCodeExec}

var builtinRules = map[string]string{
	TaskGSM8K:    "numeric_match",
	TaskMathExpr: "expression_equivalence",
	TaskLogicSAT: "logic_sat",
	TaskCodeExec: "python_unittest",
}

// RegisterBuiltinTasks registers the four rule-only demo tasks. Calling it
// again is a no-op while all of them are still registered.
func RegisterBuiltinTasks(reg *registry.Registry, cacheDir string) error {
	if registered(reg) {
		return nil
	}
	for _, name := range TaskNames {
		rule, err := RuleByName(builtinRules[name])
		if err != nil {
			return err
		}
		var opts []registry.Option
		if cacheDir != "" {
			opts = append(opts, registry.WithCacheDir(cacheDir))
		}
		if err := reg.Register(name, rule, opts...); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func registered(reg *registry.Registry) bool {
	for _, name := range TaskNames {
		if !reg.Has(name) {
			return false
		}
	}
	return true
}

// RuleByName returns a fresh rule for a rule name or one of its aliases
func RuleByName(name string) (ports.Rule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "numeric_match", "gsm8k", "gsm8k_exact_match", "exact_match":
		return rules.NewNumericMatch(), nil

	case "expression_equivalence", "sympy_equivalence", "math_expr", "expression":
		return rules.NewExpressionEquivalence(), nil

	case "logic_sat", "sat", "logic", "logicsatrule":
		return rules.NewLogicSAT(), nil

	case "python_unittest", "code_exec", "python", "pythonunittestrule":
		return rules.NewPythonUnitTest(), nil

	default:
		return nil, fmt.Errorf("unknown rule: %s", name)
	}
}

// RuleNames lists the canonical rule names RuleByName accepts
func RuleNames() []string {
	return []string{"expression_equivalence", "logic_sat", "numeric_match", "python_unittest"}
}
