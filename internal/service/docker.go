package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// psFormat is the docker ps template parsed by DockerCLI.Query.
const psFormat = "{{.Names}}\t{{.State}}\t{{.Status}}\t{{.Ports}}"

// inspectRunning prints "true" or "false" for a container.
const inspectRunning = "{{.State.Running}}"

// waitDelay bounds how long a killed docker process may hold its pipes open.
const waitDelay = time.Second

// DockerCLI is a ControlPlane that shells out to the docker CLI.
type DockerCLI struct {
	// Binary is the docker executable. Defaults to "docker" on PATH.
	Binary string
	// Env are extra environment variables (e.g. DOCKER_HOST).
	Env []string
}

func (d *DockerCLI) binary() string {
	if d.Binary == "" {
		return "docker"
	}
	return d.Binary
}

// Query lists containers matching f (docker ps [-a] --filter name=...).
func (d *DockerCLI) Query(ctx context.Context, f Filter) ([]Entry, error) {
	args := []string{"ps"}
	if f.All {
		args = append(args, "-a")
	}
	if f.Name != "" {
		args = append(args, "--filter", "name="+f.Name)
	}
	args = append(args, "--format", psFormat)

	res, err := d.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("docker ps: exit status %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return parsePS(res.Stdout), nil
}

// Act runs docker start|stop|restart on the named container. Start and stop
// first inspect the container and return a Noop result when it is already in
// the requested state, since docker exits 0 for either case. When inspect
// itself fails (no such container), the action runs and reports its own
// error.
func (d *DockerCLI) Act(ctx context.Context, action Action, name string) (Result, error) {
	if action == ActionStart || action == ActionStop {
		res, err := d.run(ctx, "inspect", "-f", inspectRunning, name)
		if err != nil {
			return res, err
		}
		if res.ExitCode == 0 {
			running := strings.TrimSpace(res.Stdout) == "true"
			if action == ActionStart && running {
				return Result{Noop: true, Stdout: name + " is already running"}, nil
			}
			if action == ActionStop && !running {
				return Result{Noop: true, Stdout: name + " is not running"}, nil
			}
		}
	}
	return d.run(ctx, string(action), name)
}

// FetchLog returns the last maxLines lines of the container's output, with
// stdout and stderr kept apart.
func (d *DockerCLI) FetchLog(ctx context.Context, name string, maxLines int) (Result, error) {
	return d.run(ctx, "logs", "--tail", strconv.Itoa(maxLines), name)
}

// run executes docker with args. A non-zero exit is reported in Result; only
// failures to run the process at all, or ctx expiry, are returned as errors.
func (d *DockerCLI) run(ctx context.Context, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if len(d.Env) > 0 {
		cmd.Env = append(cmd.Environ(), d.Env...)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("docker %s: %w", args[0], ErrTimeout)
		}
		return res, fmt.Errorf("docker %s: %w", args[0], ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("docker %s: %w", args[0], err)
	}
	return res, nil
}

// parsePS parses psFormat output, one container per line.
func parsePS(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 4)
		e := Entry{Name: strings.TrimSpace(fields[0])}
		if len(fields) > 1 {
			e.State = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			e.Status = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 {
			e.Ports = strings.TrimSpace(fields[3])
		}
		entries = append(entries, e)
	}
	return entries
}
