package clientcfg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vpnconsole/vpnconsole/internal/clientcfg"
	"github.com/vpnconsole/vpnconsole/internal/scripts"
	"github.com/vpnconsole/vpnconsole/internal/service"
)

type recordingRunner struct {
	calls   []string
	results map[string]scripts.Result
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) scripts.Result {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	if res, ok := r.results[name]; ok {
		return res
	}
	return scripts.Result{OK: true}
}

func TestCreateIssuesCertificateWhenMissing(t *testing.T) {
	pki := t.TempDir()
	r := &recordingRunner{}
	g := &clientcfg.Generator{Scripts: r, PKIDir: pki, ClientsDir: "/data/clients"}

	out, err := g.Create(context.Background(), clientcfg.Request{Name: "alice", Android: true, Inline: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"generate-certs.sh --client alice",
		"generate-client-config.sh --client alice --android --include-keys --output /data/clients",
	}
	if strings.Join(r.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", r.calls, want)
	}
	if out.ConfigPath != "/data/clients/alice.ovpn" {
		t.Errorf("ConfigPath = %q", out.ConfigPath)
	}
}

func TestCreateReusesExistingCertificate(t *testing.T) {
	pki := t.TempDir()
	if err := os.MkdirAll(filepath.Join(pki, "clients"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pki, "clients", "bob.crt"), []byte("cert"), 0644); err != nil {
		t.Fatal(err)
	}
	r := &recordingRunner{}
	g := &clientcfg.Generator{Scripts: r, PKIDir: pki, ClientsDir: "/out"}

	if _, err := g.Create(context.Background(), clientcfg.Request{Name: "bob"}); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 1 || r.calls[0] != "generate-client-config.sh --client bob --output /out" {
		t.Errorf("calls = %q", r.calls)
	}
}

func TestCreateRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "   ", "../etc", "alice bob", "name;rm"} {
		r := &recordingRunner{}
		g := &clientcfg.Generator{Scripts: r, PKIDir: t.TempDir()}
		_, err := g.Create(context.Background(), clientcfg.Request{Name: name})
		var verr *service.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Create(%q) err = %v, want *ValidationError", name, err)
		}
		if len(r.calls) != 0 {
			t.Errorf("Create(%q) ran scripts: %q", name, r.calls)
		}
	}
}

func TestCreateReportsScriptFailure(t *testing.T) {
	r := &recordingRunner{results: map[string]scripts.Result{
		"generate-certs.sh": {ExitCode: 1, Stderr: "easyrsa: CA not initialised\n"},
	}}
	g := &clientcfg.Generator{Scripts: r, PKIDir: t.TempDir()}

	_, err := g.Create(context.Background(), clientcfg.Request{Name: "carol"})
	var serr *clientcfg.StepError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *StepError", err)
	}
	if serr.Step != "certificate" || serr.Detail != "easyrsa: CA not initialised" {
		t.Errorf("StepError = %+v", serr)
	}
	if len(r.calls) != 1 {
		t.Errorf("config script ran after certificate failure: %q", r.calls)
	}
}
