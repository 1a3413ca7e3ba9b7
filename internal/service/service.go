// Package service models the fixed set of managed services (the VPN endpoint
// and the tunnel processes), probes their state, and dispatches lifecycle
// actions to them through a container control plane.
package service

import (
	"errors"
	"fmt"
	"time"
)

// GroupAll is the reserved target id addressing every service in the topology.
const GroupAll = "all"

// ErrTimeout is wrapped by control planes when a bounded call runs out of time.
var ErrTimeout = errors.New("timed out")

// ProbeKind selects how a service's state is determined.
type ProbeKind string

const (
	ProbeNetwork      ProbeKind = "network"
	ProbeControlPlane ProbeKind = "control-plane"
)

// Service is one statically configured, individually addressable service.
type Service struct {
	ID        string
	Name      string // display name
	Container string // control-plane name
	Ports     string // free-form descriptor, e.g. "1194/udp"
	Probe     ProbeKind
	Network   string // network probe only: "tcp" or "udp"
	Address   string // network probe only: "host:port"
}

// Status is the normalized reachability of a service.
type Status string

const (
	StatusUp      Status = "Up"
	StatusDown    Status = "Down"
	StatusUnknown Status = "Unknown"
)

// State is the lifecycle state paired with a Status.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateUnknown State = "unknown"
)

// ServiceStatus is the result of probing one service.
type ServiceStatus struct {
	Status Status `json:"status"`
	State  State  `json:"state"`
	Ports  string `json:"ports"`
}

// Up returns the status of a reachable service.
func Up(ports string) ServiceStatus {
	return ServiceStatus{Status: StatusUp, State: StateRunning, Ports: ports}
}

// Down returns the status of a service that is not running.
func Down(ports string) ServiceStatus {
	return ServiceStatus{Status: StatusDown, State: StateStopped, Ports: ports}
}

// Unknown returns the status of a service whose state could not be determined.
func Unknown(ports string) ServiceStatus {
	return ServiceStatus{Status: StatusUnknown, State: StateUnknown, Ports: ports}
}

// Snapshot holds one ServiceStatus for every service in the topology.
type Snapshot struct {
	Services   map[string]ServiceStatus `json:"services"`
	CapturedAt time.Time                `json:"captured_at"`
}

// Action is a lifecycle operation applied through the control plane.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction validates s as one of start, stop or restart.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Value: s}
}

// pastTense is used in outcome detail text.
func (a Action) pastTense() string {
	switch a {
	case ActionStart:
		return "started"
	case ActionStop:
		return "stopped"
	case ActionRestart:
		return "restarted"
	}
	return string(a)
}

// ValidationError reports a request that names an unknown action, target or
// parameter. It is returned before any external call is made.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}
