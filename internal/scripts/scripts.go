// Package scripts runs the deployment's helper scripts and system commands
// with a bounded timeout. Scripts are opaque: only their exit status and
// output are interpreted.
package scripts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is set in Result.Err when a run exceeds its timeout.
var ErrTimeout = errors.New("script execution timed out")

// Result is the outcome of one run. Err is set when the process could not be
// started or was killed; a non-zero exit alone only clears OK.
type Result struct {
	OK       bool
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Message returns the most useful description of a failed run: stderr, then
// stdout, then the error.
func (r Result) Message() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.OK {
		return fmt.Sprintf("exit status %d", r.ExitCode)
	}
	return ""
}

// Runner executes scripts from Dir.
type Runner struct {
	Dir     string
	Timeout time.Duration
	Env     []string // extra KEY=VALUE pairs appended to the process environment
}

// Run executes Dir/name with args. name must be a bare file name.
func (r *Runner) Run(ctx context.Context, name string, args ...string) Result {
	if name == "" || filepath.Base(name) != name {
		return Result{ExitCode: -1, Err: fmt.Errorf("invalid script name %q", name)}
	}
	return r.Exec(ctx, filepath.Join(r.Dir, name), args...)
}

// Exec runs an arbitrary binary (looked up on PATH when not a path) under the
// runner's timeout and environment.
func (r *Runner) Exec(ctx context.Context, bin string, args ...string) Result {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: %w", filepath.Base(bin), ErrTimeout)
		return res
	}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s: %w", filepath.Base(bin), err)
	default:
		res.OK = true
	}
	return res
}
