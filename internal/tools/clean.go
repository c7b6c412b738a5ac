package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cleaner preprocesses page images with the clean.py script before
// recognition. The script writes the cleaned image to the output path
// and prints CLEANED when it changed the image.
type Cleaner struct {
	runner  Runner
	python  string
	workDir string
}

// CleanerConfig configures a Cleaner.
type CleanerConfig struct {
	Runner  Runner
	Python  string // python interpreter, defaults to "python3"
	WorkDir string // directory containing src/clean.py
}

// NewCleaner creates a Cleaner.
func NewCleaner(cfg CleanerConfig) *Cleaner {
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	return &Cleaner{runner: runner, python: python, workDir: cfg.WorkDir}
}

// CleanResult is the outcome of one clean run. Output holds the
// script's combined stdout and stderr regardless of success.
type CleanResult struct {
	Cleaned bool
	Output  string
}

// Clean runs the script on input, writing the result to output.
func (c *Cleaner) Clean(ctx context.Context, input, output string) (CleanResult, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return CleanResult{}, fmt.Errorf("create output directory: %w", err)
	}

	script := filepath.Join(c.workDir, "src", "clean.py")
	out, err := c.runner.Run(ctx, c.workDir, nil, c.python, script, input, output)

	res := CleanResult{
		Cleaned: strings.Contains(string(out), "CLEANED"),
		Output:  string(out),
	}
	if err != nil {
		return res, fmt.Errorf("clean %s: %w", filepath.Base(input), err)
	}
	return res, nil
}
