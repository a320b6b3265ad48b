// Package command provides a narrow abstraction over external process
// execution so pipeline stages can be tested against a fake tool and
// assertions made on constructed argument lists.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures the outcome of a completed process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes an external command and reports its exit state. A non-zero
// exit is not an error at this layer; callers decide how to classify it.
type Runner interface {
	Run(ctx context.Context, name string, args []string, dir string) (Result, error)
}

type execRunner struct{}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args []string, dir string) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, errors.New("command name required")
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The tool ran and exited non-zero; the result carries the details.
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("run %s: %w", name, ctxErr)
		}
		return result, fmt.Errorf("run %s: %w", name, err)
	}
	return result, nil
}

// StderrTail returns the last few lines of captured stderr for error messages.
func (r Result) StderrTail(maxLines int) string {
	trimmed := strings.TrimSpace(r.Stderr)
	if trimmed == "" {
		return strings.TrimSpace(r.Stdout)
	}
	lines := strings.Split(trimmed, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}
