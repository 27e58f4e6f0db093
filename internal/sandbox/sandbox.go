// Package sandbox executes model-written code snippets in isolation.
// Docker is preferred; a host runner exists for environments without it.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Result captures the output of one execution.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner executes a command inside a working directory with a timeout.
type Runner interface {
	RunCmd(ctx context.Context, workDir, name string, args []string, timeout time.Duration) (Result, error)
}

// SnippetRunner adapts a Runner to the engine's coding action: it writes
// the snippet to a scratch directory, runs it with Python, and returns
// the combined output.
type SnippetRunner struct {
	runner  Runner
	timeout time.Duration
}

// NewSnippetRunner wraps the default runner for snippet execution.
func NewSnippetRunner(timeout time.Duration) *SnippetRunner {
	return &SnippetRunner{runner: NewDefaultRunner(), timeout: timeout}
}

// NewSnippetRunnerWith wraps a specific runner, for tests.
func NewSnippetRunnerWith(runner Runner, timeout time.Duration) *SnippetRunner {
	return &SnippetRunner{runner: runner, timeout: timeout}
}

// Run implements engine.CodeRunner.
func (s *SnippetRunner) Run(ctx context.Context, description, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("empty code snippet")
	}

	dir, err := os.MkdirTemp("", "ibis-snippet-*")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "main.py")
	if err := os.WriteFile(script, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("failed to write snippet: %w", err)
	}

	res, err := s.runner.RunCmd(ctx, dir, "python3", []string{"main.py"}, s.timeout)
	if err != nil && res.Stdout == "" && res.Stderr == "" {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("snippet timed out after %s", s.timeout)
	}
	if res.Code != 0 {
		return "", fmt.Errorf("snippet exited with code %d: %s", res.Code, strings.TrimSpace(res.Stderr))
	}

	output := strings.TrimSpace(res.Stdout)
	if output == "" {
		output = strings.TrimSpace(res.Stderr)
	}
	return output, nil
}
