package service

import (
	"context"
	"strings"
)

// Filter selects containers in a Query.
type Filter struct {
	Name string // name filter; runtimes may match substrings
	All  bool   // include stopped containers
}

// Entry is one container reported by the control plane.
type Entry struct {
	Name   string
	State  string // e.g. "running", "exited"
	Status string // e.g. "Up 3 hours", "Exited (0) 2 minutes ago"
	Ports  string
}

// IsUp reports whether the entry describes a running container.
func (e Entry) IsUp() bool {
	return e.State == "running" || strings.Contains(e.Status, "Up")
}

// Result is the outcome of an Act or FetchLog call that reached the runtime.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Noop is set by control planes that can tell the target was already in
	// the requested state without inspecting error text.
	Noop bool
}

// ControlPlane talks to the container runtime. Every call must honour ctx's
// deadline; a call that runs out of time returns an error wrapping ErrTimeout.
// A non-zero exit is not an error: it is reported in Result.
type ControlPlane interface {
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Act(ctx context.Context, action Action, name string) (Result, error)
	FetchLog(ctx context.Context, name string, maxLines int) (Result, error)
}

// FindExact returns the entry whose name equals name exactly.
func FindExact(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
