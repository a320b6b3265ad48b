// Package testsupport holds shared helpers for package tests.
package testsupport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"montage/internal/command"
)

// Call records one invocation observed by the fake runner.
type Call struct {
	Name string
	Args []string
	Dir  string
}

// Response scripts the fake runner's reply for an invocation whose argument
// list contains Match as a substring of the joined arguments.
type Response struct {
	Match    string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// FakeRunner is a scripted command.Runner that records constructed argument
// lists so tests assert on how external tools would have been invoked.
type FakeRunner struct {
	// CreateOutputs makes successful invocations touch the path following a
	// -y flag, standing in for the file the real tool would produce.
	CreateOutputs bool

	mu        sync.Mutex
	calls     []Call
	responses []Response
}

var _ command.Runner = (*FakeRunner)(nil)

// NewFakeRunner returns a runner that answers every call with exit 0 unless
// scripted otherwise.
func NewFakeRunner(responses ...Response) *FakeRunner {
	return &FakeRunner{responses: responses}
}

// Run records the call and returns the first matching scripted response.
func (f *FakeRunner) Run(_ context.Context, name string, args []string, dir string) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := append([]string(nil), args...)
	f.calls = append(f.calls, Call{Name: name, Args: copied, Dir: dir})

	joined := name + " " + strings.Join(args, " ")
	for _, resp := range f.responses {
		if resp.Match == "" || strings.Contains(joined, resp.Match) {
			if resp.Err != nil {
				return command.Result{ExitCode: -1}, resp.Err
			}
			if resp.ExitCode == 0 {
				f.touchOutput(args)
			}
			return command.Result{ExitCode: resp.ExitCode, Stdout: resp.Stdout, Stderr: resp.Stderr}, nil
		}
	}
	f.touchOutput(args)
	return command.Result{ExitCode: 0}, nil
}

func (f *FakeRunner) touchOutput(args []string) {
	if !f.CreateOutputs {
		return
	}
	for i, a := range args {
		if a == "-y" && i+1 < len(args) {
			_ = os.WriteFile(args[i+1], []byte("fake media"), 0o644)
			return
		}
	}
}

// Calls returns the recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many invocations were recorded.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Joined renders an invocation as a single string for substring assertions.
func (c Call) Joined() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// HasArg reports whether the exact argument appears in the call.
func (c Call) HasArg(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// ArgAfter returns the argument following the first occurrence of flag.
func (c Call) ArgAfter(flag string) (string, error) {
	for i, a := range c.Args {
		if a == flag {
			if i+1 >= len(c.Args) {
				return "", fmt.Errorf("flag %s has no value in %q", flag, c.Joined())
			}
			return c.Args[i+1], nil
		}
	}
	return "", fmt.Errorf("flag %s not present in %q", flag, c.Joined())
}
