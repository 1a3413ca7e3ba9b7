package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

// fakeControlPlane emulates the docker CLI against an in-memory set of
// containers: no-op start/stop exit non-zero with the CLI's error text.
type fakeControlPlane struct {
	mu       sync.Mutex
	running  map[string]bool // name -> running; absent means no such container
	queryErr error
	actFn    func(ctx context.Context, action service.Action, name string) (service.Result, error)
	calls    []string
}

func newFakeControlPlane(running map[string]bool) *fakeControlPlane {
	if running == nil {
		running = map[string]bool{}
	}
	return &fakeControlPlane{running: running}
}

func (f *fakeControlPlane) Query(_ context.Context, flt service.Filter) ([]service.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "query "+flt.Name)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []service.Entry
	for name, up := range f.running {
		if !strings.Contains(name, flt.Name) {
			continue
		}
		if !up && !flt.All {
			continue
		}
		e := service.Entry{Name: name, State: "exited", Status: "Exited (0) 5 minutes ago"}
		if up {
			e.State, e.Status = "running", "Up 2 hours"
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeControlPlane) Act(ctx context.Context, action service.Action, name string) (service.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, string(action)+" "+name)
	actFn := f.actFn
	f.mu.Unlock()
	if actFn != nil {
		return actFn(ctx, action, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.running[name]
	if !ok {
		return service.Result{ExitCode: 1, Stderr: "Error response from daemon: No such container: " + name}, nil
	}
	switch action {
	case service.ActionStart:
		if up {
			return service.Result{ExitCode: 1, Stderr: fmt.Sprintf("Error response from daemon: container %s is already running", name)}, nil
		}
		f.running[name] = true
	case service.ActionStop:
		if !up {
			return service.Result{ExitCode: 1, Stderr: fmt.Sprintf("Error response from daemon: container %s is not running", name)}, nil
		}
		f.running[name] = false
	case service.ActionRestart:
		f.running[name] = true
	}
	return service.Result{Stdout: name + "\n"}, nil
}

func (f *fakeControlPlane) FetchLog(_ context.Context, name string, _ int) (service.Result, error) {
	return service.Result{Stdout: "log line from " + name}, nil
}

func (f *fakeControlPlane) actCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if !strings.HasPrefix(c, "query ") {
			out = append(out, c)
		}
	}
	return out
}

// testTopology mirrors the default deployment: one network-probed VPN
// endpoint and two control-plane-probed tunnel processes.
func testTopology() *service.Topology {
	topo, err := service.NewTopology([]service.Service{
		{ID: "openvpn", Name: "OpenVPN", Container: "openvpn", Ports: "1194/udp", Probe: service.ProbeNetwork, Network: "udp", Address: "127.0.0.1:1194"},
		{ID: "frpc", Name: "FRP Client", Container: "frpc", Ports: "various", Probe: service.ProbeControlPlane},
		{ID: "frps", Name: "FRP Server", Container: "frps", Ports: "various", Probe: service.ProbeControlPlane},
	}, []service.LogSource{{ID: "web", Container: "openvpn-web"}})
	if err != nil {
		panic(err)
	}
	return topo
}
