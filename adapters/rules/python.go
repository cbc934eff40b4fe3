package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"hvt/domain/core"
)

const unittestRunner = `
import unittest, sys

def _run():
    loader = unittest.defaultTestLoader
    suite = loader.loadTestsFromModule(sys.modules[__name__])
    result = unittest.TextTestRunner(stream=sys.stdout, verbosity=0).run(suite)
    sys.exit(0 if result.wasSuccessful() else 1)

if __name__ == "__main__":
    _run()
`

// DefaultPythonTimeout bounds one candidate test run
const DefaultPythonTimeout = 3 * time.Second

// PythonUnitTest runs the candidate code followed by metadata["tests_code"]
// under the unittest runner. The check passes when the interpreter exits 0.
type PythonUnitTest struct {
	Timeout   time.Duration
	PythonBin string
}

// NewPythonUnitTest creates the rule with a 3s timeout and python3
func NewPythonUnitTest() *PythonUnitTest {
	return &PythonUnitTest{Timeout: DefaultPythonTimeout, PythonBin: "python3"}
}

func (r *PythonUnitTest) Name() string { return NamePythonUnitTest }

func (r *PythonUnitTest) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	tests, _ := metadata[MetaTestsCode].(string)
	if strings.TrimSpace(tests) == "" {
		return false, nil, core.NewRuleError(r.Name(), "metadata requires 'tests_code'")
	}

	dir, err := os.MkdirTemp("", "hvt-python-*")
	if err != nil {
		return false, nil, core.NewRuleError(r.Name(), err.Error())
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "candidate_tests.py")
	if err := os.WriteFile(script, []byte(ComposeScript(candidate, tests)), 0600); err != nil {
		return false, nil, core.NewRuleError(r.Name(), err.Error())
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultPythonTimeout
	}
	bin := r.PythonBin
	if bin == "" {
		bin = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, bin, script)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return false, nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return false, nil, core.NewRuleError(r.Name(), fmt.Sprintf("timed out after %s", timeout))
	}

	returnCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return false, nil, core.NewRuleError(r.Name(), fmt.Sprintf("run %s: %v", bin, err))
		}
		returnCode = exitErr.ExitCode()
	}

	return returnCode == 0, map[string]any{
		"stdout":     stdout.String(),
		"stderr":     stderr.String(),
		"returncode": returnCode,
	}, nil
}

// ComposeScript joins candidate code, tests and the unittest runner
func ComposeScript(candidate, tests string) string {
	return strings.Join([]string{strings.TrimSpace(candidate), strings.TrimSpace(tests), unittestRunner}, "\n")
}
