package service

import "fmt"

// LogSource is a container that only contributes logs (e.g. the web console)
// and is never a lifecycle target.
type LogSource struct {
	ID        string
	Container string
}

// Topology is the immutable set of services and extra log sources. It is built
// once from configuration and shared read-only by every component.
type Topology struct {
	services   []Service
	byID       map[string]int
	logSources []LogSource
	logByID    map[string]int
}

// NewTopology validates services and log sources and returns a Topology.
// Ids must be unique across both lists and must not be GroupAll.
func NewTopology(services []Service, logSources []LogSource) (*Topology, error) {
	t := &Topology{
		services:   make([]Service, len(services)),
		byID:       make(map[string]int, len(services)),
		logSources: make([]LogSource, len(logSources)),
		logByID:    make(map[string]int, len(logSources)),
	}
	copy(t.services, services)
	copy(t.logSources, logSources)

	seen := make(map[string]bool)
	for i, s := range t.services {
		if err := checkID(s.ID, seen); err != nil {
			return nil, err
		}
		if s.Container == "" {
			return nil, fmt.Errorf("service %q: container name required", s.ID)
		}
		switch s.Probe {
		case ProbeControlPlane:
		case ProbeNetwork:
			if s.Address == "" {
				return nil, fmt.Errorf("service %q: network probe requires an address", s.ID)
			}
			if s.Network == "" {
				t.services[i].Network = "tcp"
			}
		default:
			return nil, fmt.Errorf("service %q: unknown probe %q", s.ID, s.Probe)
		}
		if s.Name == "" {
			t.services[i].Name = s.ID
		}
		t.byID[s.ID] = i
	}
	for i, l := range t.logSources {
		if err := checkID(l.ID, seen); err != nil {
			return nil, err
		}
		if l.Container == "" {
			return nil, fmt.Errorf("log source %q: container name required", l.ID)
		}
		t.logByID[l.ID] = i
	}
	if len(t.services) == 0 {
		return nil, fmt.Errorf("topology has no services")
	}
	return t, nil
}

func checkID(id string, seen map[string]bool) error {
	if id == "" {
		return fmt.Errorf("empty service id")
	}
	if id == GroupAll {
		return fmt.Errorf("service id %q is reserved", GroupAll)
	}
	if seen[id] {
		return fmt.Errorf("duplicate service id %q", id)
	}
	seen[id] = true
	return nil
}

// Services returns the services in configuration order.
func (t *Topology) Services() []Service {
	out := make([]Service, len(t.services))
	copy(out, t.services)
	return out
}

// Lookup returns the service with the given id.
func (t *Topology) Lookup(id string) (Service, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Service{}, false
	}
	return t.services[i], true
}

// Expand resolves an action target to the concrete services it affects.
// GroupAll expands to every service; the group itself is never returned.
func (t *Topology) Expand(target string) ([]Service, error) {
	if target == GroupAll {
		return t.Services(), nil
	}
	if s, ok := t.Lookup(target); ok {
		return []Service{s}, nil
	}
	return nil, &ValidationError{Field: "service", Value: target}
}

// LogTargets resolves a log target to container names. For GroupAll this is
// every service container followed by every extra log source.
func (t *Topology) LogTargets(target string) ([]string, error) {
	if target == GroupAll {
		names := make([]string, 0, len(t.services)+len(t.logSources))
		for _, s := range t.services {
			names = append(names, s.Container)
		}
		for _, l := range t.logSources {
			names = append(names, l.Container)
		}
		return names, nil
	}
	if s, ok := t.Lookup(target); ok {
		return []string{s.Container}, nil
	}
	if i, ok := t.logByID[target]; ok {
		return []string{t.logSources[i].Container}, nil
	}
	return nil, &ValidationError{Field: "service", Value: target}
}
