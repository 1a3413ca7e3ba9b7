package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// engineClient is the subset of the Docker Engine SDK used by DockerAPI.
type engineClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	Close() error
}

// DockerAPI is a ControlPlane backed by the Docker Engine API. Unlike the CLI
// it inspects the container before start/stop, so no-ops are reported through
// Result.Noop rather than error text.
type DockerAPI struct {
	cli engineClient
}

// NewDockerAPI connects to the engine at host, or to the environment's
// DOCKER_HOST when host is empty.
func NewDockerAPI(host string) (*DockerAPI, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerAPI{cli: cli}, nil
}

// Close releases the underlying HTTP transport.
func (d *DockerAPI) Close() error {
	return d.cli.Close()
}

// Query lists containers matching f.
func (d *DockerAPI) Query(ctx context.Context, f Filter) ([]Entry, error) {
	opts := container.ListOptions{All: f.All}
	if f.Name != "" {
		opts.Filters = filters.NewArgs(filters.Arg("name", f.Name))
	}
	list, err := d.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, apiErr(ctx, "container list", err)
	}
	entries := make([]Entry, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		entries = append(entries, Entry{
			Name:   name,
			State:  string(c.State),
			Status: c.Status,
			Ports:  formatPorts(c.Ports),
		})
	}
	return entries, nil
}

// Act starts, stops or restarts the named container.
func (d *DockerAPI) Act(ctx context.Context, action Action, name string) (Result, error) {
	if action == ActionStart || action == ActionStop {
		info, err := d.cli.ContainerInspect(ctx, name)
		if err != nil {
			return failedResult(ctx, "container inspect", name, err)
		}
		running := info.ContainerJSONBase != nil && info.State != nil && info.State.Running
		if action == ActionStart && running {
			return Result{Noop: true, Stdout: name + " is already running"}, nil
		}
		if action == ActionStop && !running {
			return Result{Noop: true, Stdout: name + " is not running"}, nil
		}
	}

	var err error
	switch action {
	case ActionStart:
		err = d.cli.ContainerStart(ctx, name, container.StartOptions{})
	case ActionStop:
		err = d.cli.ContainerStop(ctx, name, container.StopOptions{})
	case ActionRestart:
		err = d.cli.ContainerRestart(ctx, name, container.StopOptions{})
	default:
		return Result{}, &ValidationError{Field: "action", Value: string(action)}
	}
	if err != nil {
		return failedResult(ctx, "container "+string(action), name, err)
	}
	return Result{Stdout: name}, nil
}

// FetchLog returns the last maxLines lines of the container's output.
func (d *DockerAPI) FetchLog(ctx context.Context, name string, maxLines int) (Result, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return failedResult(ctx, "container inspect", name, err)
	}
	rc, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(maxLines),
	})
	if err != nil {
		return failedResult(ctx, "container logs", name, err)
	}
	defer func() { _ = rc.Close() }()

	var stdout, stderr bytes.Buffer
	if info.Config != nil && info.Config.Tty {
		_, err = io.Copy(&stdout, rc)
	} else {
		_, err = stdcopy.StdCopy(&stdout, &stderr, rc)
	}
	if err != nil {
		return failedResult(ctx, "read logs", name, err)
	}
	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// failedResult converts an engine error into a non-zero Result, keeping
// timeouts as errors so they classify the same way as CLI timeouts.
func failedResult(ctx context.Context, op, name string, err error) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, apiErr(ctx, op, err)
	}
	msg := err.Error()
	if cerrdefs.IsNotFound(err) {
		msg = "No such container: " + name
	}
	return Result{ExitCode: 1, Stderr: msg}, nil
}

func apiErr(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("docker %s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("docker %s: %w", op, err)
}

func formatPorts(ports []container.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.PublicPort != 0 {
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
	}
	return strings.Join(parts, ", ")
}
