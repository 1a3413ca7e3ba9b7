package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

func TestDispatchAllExpandsToEveryService(t *testing.T) {
	topo := testTopology()
	cp := newFakeControlPlane(map[string]bool{"openvpn": true, "frpc": true, "frps": true})
	d := service.NewDispatcher(topo, cp, service.DispatcherOptions{})

	report, err := d.Dispatch(context.Background(), "restart", service.GroupAll)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(report.Outcomes) != len(topo.Services()) {
		t.Fatalf("len(outcomes) = %d, want %d", len(report.Outcomes), len(topo.Services()))
	}
	for i, o := range report.Outcomes {
		if o.Service == service.GroupAll {
			t.Errorf("outcome %d is for the virtual group", i)
		}
		if o.Classification != service.Succeeded {
			t.Errorf("%s: classification = %s, want succeeded", o.Service, o.Classification)
		}
	}
	for _, c := range cp.actCalls() {
		if strings.HasSuffix(c, " all") {
			t.Errorf("control plane called with the virtual group: %q", c)
		}
	}
	if !report.AllSucceeded {
		t.Error("AllSucceeded = false, want true")
	}
}

func TestDispatchOrderFollowsTopology(t *testing.T) {
	cp := newFakeControlPlane(map[string]bool{"openvpn": false, "frpc": false, "frps": false})
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{Parallelism: 3})

	report, err := d.Dispatch(context.Background(), "start", "all")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"openvpn", "frpc", "frps"}
	for i, o := range report.Outcomes {
		if o.Service != want[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, o.Service, want[i])
		}
	}
}

func TestDispatchStopTwiceIsAlreadyInState(t *testing.T) {
	cp := newFakeControlPlane(map[string]bool{"frpc": true})
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{})

	first, err := d.Dispatch(context.Background(), "stop", "frpc")
	if err != nil {
		t.Fatal(err)
	}
	if got := first.Outcomes[0].Classification; got != service.Succeeded {
		t.Fatalf("first stop = %s, want succeeded", got)
	}

	second, err := d.Dispatch(context.Background(), "stop", "frpc")
	if err != nil {
		t.Fatal(err)
	}
	o := second.Outcomes[0]
	if o.Classification != service.AlreadyInState {
		t.Errorf("second stop = %s, want already_in_state", o.Classification)
	}
	if o.Detail != "FRP Client already stopped" {
		t.Errorf("detail = %q", o.Detail)
	}
	if !second.AllSucceeded {
		t.Error("already-stopped should not count as a failure")
	}
}

func TestDispatchStartRunningIsAlreadyInState(t *testing.T) {
	cp := newFakeControlPlane(map[string]bool{"frps": true})
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{})

	report, err := d.Dispatch(context.Background(), "start", "frps")
	if err != nil {
		t.Fatal(err)
	}
	if got := report.Outcomes[0].Classification; got != service.AlreadyInState {
		t.Errorf("classification = %s, want already_in_state", got)
	}
}

func TestDispatchFailureCarriesErrorText(t *testing.T) {
	cp := newFakeControlPlane(map[string]bool{"openvpn": true, "frpc": true})
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{})

	// frps does not exist in the fake runtime.
	report, err := d.Dispatch(context.Background(), "restart", "all")
	if err != nil {
		t.Fatalf("Dispatch returned error for a partial failure: %v", err)
	}
	if report.AllSucceeded {
		t.Error("AllSucceeded = true, want false")
	}
	last := report.Outcomes[2]
	if last.Classification != service.Failed {
		t.Fatalf("frps = %s, want failed", last.Classification)
	}
	if !strings.Contains(last.Detail, "No such container: frps") {
		t.Errorf("detail = %q, want raw error text", last.Detail)
	}
	if report.Outcomes[0].Classification != service.Succeeded {
		t.Error("a failure on one service should not affect the others")
	}
}

func TestDispatchTimeoutIsFailed(t *testing.T) {
	cp := newFakeControlPlane(nil)
	cp.actFn = func(ctx context.Context, _ service.Action, _ string) (service.Result, error) {
		<-ctx.Done()
		return service.Result{}, fmt.Errorf("docker stop: %w", service.ErrTimeout)
	}
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	report, err := d.Dispatch(context.Background(), "stop", "openvpn")
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %s; timeout not applied", elapsed)
	}
	o := report.Outcomes[0]
	if o.Classification != service.Failed {
		t.Errorf("classification = %s, want failed", o.Classification)
	}
	if !strings.Contains(o.Detail, "timed out") {
		t.Errorf("detail = %q, want timeout marker", o.Detail)
	}
}

func TestDispatchInvocationError(t *testing.T) {
	cp := newFakeControlPlane(nil)
	cp.actFn = func(context.Context, service.Action, string) (service.Result, error) {
		return service.Result{}, errors.New("exec: \"docker\": executable file not found in $PATH")
	}
	d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{})

	report, err := d.Dispatch(context.Background(), "start", "frpc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(report.Outcomes[0].Detail, "executable file not found") {
		t.Errorf("detail = %q", report.Outcomes[0].Detail)
	}
}

func TestDispatchValidation(t *testing.T) {
	tests := []struct {
		name, action, target, field string
	}{
		{"unknown action", "reload", "frpc", "action"},
		{"empty action", "", "frpc", "action"},
		{"unknown target", "start", "nginx", "service"},
		{"empty target", "stop", "", "service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := newFakeControlPlane(map[string]bool{"frpc": true})
			d := service.NewDispatcher(testTopology(), cp, service.DispatcherOptions{})

			_, err := d.Dispatch(context.Background(), tt.action, tt.target)
			var verr *service.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
			if calls := cp.actCalls(); len(calls) != 0 {
				t.Errorf("control plane called %v before validation", calls)
			}
		})
	}
}

func TestReportMessage(t *testing.T) {
	r := service.Report{Outcomes: []service.Outcome{
		{Detail: "OpenVPN started"},
		{Detail: "FRP Client already running"},
	}}
	if got, want := r.Message(), "OpenVPN started\nFRP Client already running"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}
