package logs_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vpnconsole/vpnconsole/internal/logs"
	"github.com/vpnconsole/vpnconsole/internal/service"
)

// stubPlane serves canned log output per container.
type stubPlane struct {
	present  map[string]bool
	output   map[string]service.Result
	fetchErr map[string]error
	queryErr error
	delay    map[string]time.Duration
}

func (s *stubPlane) Query(_ context.Context, f service.Filter) ([]service.Entry, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []service.Entry
	for name := range s.present {
		if strings.Contains(name, f.Name) {
			out = append(out, service.Entry{Name: name, State: "running"})
		}
	}
	return out, nil
}

func (s *stubPlane) Act(context.Context, service.Action, string) (service.Result, error) {
	return service.Result{}, errors.New("not implemented")
}

func (s *stubPlane) FetchLog(ctx context.Context, name string, maxLines int) (service.Result, error) {
	if d := s.delay[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return service.Result{}, fmt.Errorf("docker logs: %w", service.ErrTimeout)
		}
	}
	if err := s.fetchErr[name]; err != nil {
		return service.Result{}, err
	}
	return s.output[name], nil
}

func topology(t *testing.T) *service.Topology {
	t.Helper()
	topo, err := service.NewTopology([]service.Service{
		{ID: "openvpn", Container: "openvpn", Probe: service.ProbeNetwork, Network: "udp", Address: "127.0.0.1:1194"},
		{ID: "frpc", Container: "frpc", Probe: service.ProbeControlPlane},
		{ID: "frps", Container: "frps", Probe: service.ProbeControlPlane},
	}, []service.LogSource{{ID: "web", Container: "openvpn-web"}})
	if err != nil {
		t.Fatal(err)
	}
	return topo
}

func kinds(b logs.Bundle) []logs.Kind {
	out := make([]logs.Kind, len(b.Sections))
	for i, s := range b.Sections {
		out[i] = s.Kind
	}
	return out
}

func TestSingleAbsentTargetYieldsOneAbsentSection(t *testing.T) {
	a := logs.NewAggregator(topology(t), &stubPlane{present: map[string]bool{}}, logs.Options{})
	b, err := a.Logs(context.Background(), "frpc", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Sections) != 1 || b.Sections[0].Kind != logs.KindAbsent {
		t.Fatalf("sections = %+v, want one absent section", b.Sections)
	}
	if b.Sections[0].Header != "=== FRPC - CONTAINER NOT FOUND OR NOT RUNNING ===" {
		t.Errorf("header = %q", b.Sections[0].Header)
	}
}

func TestGroupSkipsAbsentMembers(t *testing.T) {
	cp := &stubPlane{
		present: map[string]bool{"frps": true},
		output:  map[string]service.Result{"frps": {Stdout: "listening on 7000\n"}},
	}
	b, err := logs.NewAggregator(topology(t), cp, logs.Options{}).Logs(context.Background(), service.GroupAll, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Sections) != 1 {
		t.Fatalf("sections = %+v, want one", b.Sections)
	}
	s := b.Sections[0]
	if s.Kind != logs.KindLogs || s.Header != "=== FRPS LOGS ===" || s.Body != "listening on 7000" {
		t.Errorf("section = %+v", s)
	}
}

func TestSubstringMatchIsNotPresence(t *testing.T) {
	// "openvpn-web" contains "openvpn" but must not satisfy its existence check.
	cp := &stubPlane{present: map[string]bool{"openvpn-web": true}}
	b, err := logs.NewAggregator(topology(t), cp, logs.Options{}).Logs(context.Background(), "openvpn", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got := kinds(b); len(got) != 1 || got[0] != logs.KindAbsent {
		t.Errorf("kinds = %v, want [absent]", got)
	}
}

func TestGroupOrderIsResolutionOrder(t *testing.T) {
	cp := &stubPlane{
		present: map[string]bool{"openvpn": true, "frpc": true, "frps": true, "openvpn-web": true},
		output: map[string]service.Result{
			"openvpn":     {Stdout: "vpn", Stderr: "warn"},
			"frpc":        {Stdout: "client"},
			"frps":        {Stdout: "server"},
			"openvpn-web": {Stdout: "web"},
		},
		// Earlier sources finish last.
		delay: map[string]time.Duration{"openvpn": 30 * time.Millisecond, "frpc": 15 * time.Millisecond},
	}
	b, err := logs.NewAggregator(topology(t), cp, logs.Options{}).Logs(context.Background(), service.GroupAll, 100)
	if err != nil {
		t.Fatal(err)
	}
	var headers []string
	for _, s := range b.Sections {
		headers = append(headers, s.Header)
	}
	want := []string{
		"=== OPENVPN LOGS ===",
		"=== OPENVPN ERRORS ===",
		"=== FRPC LOGS ===",
		"=== FRPS LOGS ===",
		"=== OPENVPN-WEB LOGS ===",
	}
	if strings.Join(headers, "|") != strings.Join(want, "|") {
		t.Errorf("headers = %v, want %v", headers, want)
	}
}

func TestFailureSections(t *testing.T) {
	cp := &stubPlane{
		present:  map[string]bool{"openvpn": true, "frpc": true, "frps": true},
		output:   map[string]service.Result{"frpc": {ExitCode: 1, Stderr: "permission denied\n"}},
		fetchErr: map[string]error{"frps": errors.New("exec: docker not found")},
		delay:    map[string]time.Duration{"openvpn": time.Second},
	}
	a := logs.NewAggregator(topology(t), cp, logs.Options{FetchTimeout: 20 * time.Millisecond})
	b, err := a.Logs(context.Background(), service.GroupAll, 100)
	if err != nil {
		t.Fatal(err)
	}
	want := []logs.Kind{logs.KindTimeout, logs.KindFailed, logs.KindError}
	got := kinds(b)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if b.Sections[1].Body != "Error: permission denied" {
		t.Errorf("failed body = %q", b.Sections[1].Body)
	}
	if !strings.Contains(b.Sections[2].Body, "docker not found") {
		t.Errorf("error body = %q", b.Sections[2].Body)
	}
}

func TestEmptyOutputYieldsPlaceholder(t *testing.T) {
	cp := &stubPlane{present: map[string]bool{"frpc": true}, output: map[string]service.Result{"frpc": {Stdout: "  \n"}}}
	b, err := logs.NewAggregator(topology(t), cp, logs.Options{}).Logs(context.Background(), "frpc", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Sections) != 1 || b.Sections[0].Kind != logs.KindPlaceholder {
		t.Fatalf("sections = %+v", b.Sections)
	}
	if b.String() != logs.Placeholder {
		t.Errorf("String() = %q", b.String())
	}
}

func TestQueryFailureTreatedAsAbsent(t *testing.T) {
	cp := &stubPlane{queryErr: errors.New("daemon down")}
	b, err := logs.NewAggregator(topology(t), cp, logs.Options{}).Logs(context.Background(), "web", 100)
	if err != nil {
		t.Fatal(err)
	}
	if got := kinds(b); len(got) != 1 || got[0] != logs.KindAbsent {
		t.Errorf("kinds = %v", got)
	}
}

func TestLogsValidation(t *testing.T) {
	a := logs.NewAggregator(topology(t), &stubPlane{}, logs.Options{})
	tests := []struct {
		name   string
		target string
		lines  int
	}{
		{"unknown target", "nginx", 100},
		{"zero lines", "frpc", 0},
		{"negative lines", "frpc", -5},
		{"too many lines", "frpc", logs.MaxLines + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Logs(context.Background(), tt.target, tt.lines)
			var verr *service.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want *ValidationError", err)
			}
		})
	}
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", logs.DefaultLines, false},
		{"50", 50, false},
		{"10000", 10000, false},
		{"10001", 0, true},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := logs.ParseLines(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLines(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLines(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBundleString(t *testing.T) {
	b := logs.Bundle{Sections: []logs.Section{
		{Kind: logs.KindLogs, Header: "=== FRPC LOGS ===", Body: "a\nb"},
		{Kind: logs.KindAbsent, Header: "=== FRPS - CONTAINER NOT FOUND OR NOT RUNNING ==="},
	}}
	want := "=== FRPC LOGS ===\na\nb\n\n=== FRPS - CONTAINER NOT FOUND OR NOT RUNNING ===\n"
	if got := b.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
