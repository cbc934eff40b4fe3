package synlogic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"hvt/domain/verdict"
	"hvt/ports"
)

// NewRand returns the deterministic source Synthesize draws from
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Synthesize generates perTask examples from every task and labels each
// canonical answer by verifying it with lookup[example.VerifierTask].
// Reward is 1 for PASS and 0 otherwise.
func Synthesize(ctx context.Context, tasks []Task, lookup map[string]ports.Verifier, perTask int, seed uint64) ([]Example, error) {
	rng := NewRand(seed)
	dataset := make([]Example, 0, len(tasks)*perTask)
	for _, task := range tasks {
		for i := 0; i < perTask; i++ {
			ex := task.Generate(rng, DifficultyMedium)
			v, ok := lookup[ex.VerifierTask]
			if !ok {
				return nil, fmt.Errorf("verifier %q not found in lookup", ex.VerifierTask)
			}
			result, err := v.Verify(ctx, ex.Prompt, ex.CanonicalAnswer, ex.Metadata)
			if err != nil {
				return nil, fmt.Errorf("%s example %d: %w", task.Name(), i, err)
			}
			ex.Reward = 0.0
			if result.Verdict == verdict.Pass {
				ex.Reward = 1.0
			}
			ex.Extra = map[string]any{
				"verdict": result.Verdict.String(),
				"rule":    result.Provenance.RuleName,
			}
			dataset = append(dataset, ex)
		}
	}
	return dataset, nil
}

// ExportJSONL writes one example per line, creating parent directories
func ExportJSONL(examples []Example, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("encode example: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// LoadJSONL reads a file written by ExportJSONL
func LoadJSONL(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ex Example
		if err := json.Unmarshal([]byte(line), &ex); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return examples, nil
}
