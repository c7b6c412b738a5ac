// Package tools wraps the external binaries the page processor shells
// out to. The pipeline depends on the Runner interface so tests run
// without tesseract or python installed.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Runner executes an external command and returns its combined
// stdout and stderr. The combined output is kept even on failure so
// diagnostics can be recorded on the page.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}

var _ Runner = ExecRunner{}
