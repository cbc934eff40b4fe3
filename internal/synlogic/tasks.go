// Package synlogic generates small verifiable reasoning tasks and labels
// their canonical answers with the built-in verifiers.
package synlogic

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"hvt/internal/builtins"
)

// Difficulty levels
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
)

// Example is one generated task instance
type Example struct {
	TaskName        string         `json:"task_name"`
	Prompt          string         `json:"prompt"`
	CanonicalAnswer string         `json:"canonical_answer"`
	Metadata        map[string]any `json:"metadata"`
	VerifierTask    string         `json:"verifier_task"`
	Difficulty      string         `json:"difficulty"`
	Reward          float64        `json:"reward"`
	Extra           map[string]any `json:"extra"`
}

// Task generates examples from a seeded source
type Task interface {
	Name() string
	Generate(rng *rand.Rand, difficulty string) Example
}

// BooleanConstraintTask asks for an assignment satisfying unit constraints
// plus one disjunction
type BooleanConstraintTask struct{}

func (BooleanConstraintTask) Name() string { return "boolean_constraints" }

func (t BooleanConstraintTask) Generate(rng *rand.Rand, difficulty string) Example {
	count := 4
	if difficulty == DifficultyEasy {
		count = 3
	}
	pool := []string{"x", "y", "z", "u", "v", "w"}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	vars := pool[:count]

	values := make([]bool, count)
	var truthy []int
	for i := range vars {
		values[i] = rng.IntN(2) == 1
		if values[i] {
			truthy = append(truthy, i)
		}
	}
	if len(truthy) == 0 {
		values[0] = true
		truthy = []int{0}
	}

	constraints := make([]any, 0, count+1)
	answer := make([]string, 0, count)
	for i, v := range vars {
		if values[i] {
			constraints = append(constraints, v)
			answer = append(answer, v+"=True")
		} else {
			constraints = append(constraints, fmt.Sprintf("Not(%s)", v))
			answer = append(answer, v+"=False")
		}
	}
	// one side of the disjunction is always true
	a := truthy[rng.IntN(len(truthy))]
	b := (a + 1 + rng.IntN(count-1)) % count
	constraints = append(constraints, fmt.Sprintf("Or(%s, %s)", vars[a], vars[b]))

	return Example{
		TaskName:        t.Name(),
		Prompt:          "Assign boolean values to the variables so that all constraints hold. Respond as 'x=True y=False ...'.",
		CanonicalAnswer: strings.Join(answer, " "),
		Metadata:        map[string]any{"constraints": constraints},
		VerifierTask:    builtins.TaskLogicSAT,
		Difficulty:      difficulty,
		Reward:          1.0,
		Extra:           map[string]any{},
	}
}

// WordEquationTask is a one-step arithmetic story problem
type WordEquationTask struct{}

func (WordEquationTask) Name() string { return "word_equations" }

func (t WordEquationTask) Generate(rng *rand.Rand, difficulty string) Example {
	base := 3 + rng.IntN(8)
	gain := 2 + rng.IntN(5)
	give := 1 + rng.IntN(3)
	answer := fmt.Sprint(base + gain - give)
	prompt := fmt.Sprintf("Alex has %d marbles, wins %d more in a game, and gives %d to a friend. "+
		"How many marbles does Alex have now?", base, gain, give)

	return Example{
		TaskName:        t.Name(),
		Prompt:          prompt,
		CanonicalAnswer: answer,
		Metadata:        map[string]any{"reference_answer": answer},
		VerifierTask:    builtins.TaskGSM8K,
		Difficulty:      difficulty,
		Reward:          1.0,
		Extra:           map[string]any{},
	}
}

// ExpressionSimplifyTask asks to collapse like terms and a cancelling constant
type ExpressionSimplifyTask struct{}

func (ExpressionSimplifyTask) Name() string { return "expression_simplify" }

func (t ExpressionSimplifyTask) Generate(rng *rand.Rand, difficulty string) Example {
	coeff := 2 + rng.IntN(4)
	extra := 1 + rng.IntN(4)
	answer := fmt.Sprintf("%d*x", 2*coeff)

	return Example{
		TaskName:        t.Name(),
		Prompt:          fmt.Sprintf("Simplify the expression: %d*x + %d*x + %d - %d", coeff, coeff, extra, extra),
		CanonicalAnswer: answer,
		Metadata:        map[string]any{"reference_expression": answer},
		VerifierTask:    builtins.TaskMathExpr,
		Difficulty:      difficulty,
		Reward:          1.0,
		Extra:           map[string]any{},
	}
}

// DefaultTasks returns one of each generator
func DefaultTasks() []Task {
	return []Task{BooleanConstraintTask{}, WordEquationTask{}, ExpressionSimplifyTask{}}
}

// TasksByName selects tasks from DefaultTasks; unknown names are an error
func TasksByName(names []string) ([]Task, error) {
	all := DefaultTasks()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Task, len(all))
	for _, t := range all {
		byName[t.Name()] = t
	}
	var missing []string
	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		t, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		tasks = append(tasks, t)
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("unknown SynLogic task(s): %s", strings.Join(missing, ", "))
	}
	return tasks, nil
}
