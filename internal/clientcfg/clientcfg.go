// Package clientcfg produces VPN client configuration files by driving the
// deployment's certificate and config generation scripts.
package clientcfg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/vpnconsole/vpnconsole/internal/scripts"
	"github.com/vpnconsole/vpnconsole/internal/service"
)

const (
	certScript   = "generate-certs.sh"
	configScript = "generate-client-config.sh"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName reports whether name is usable as a client name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return &service.ValidationError{Field: "name", Value: name}
	}
	return nil
}

// ScriptRunner runs a named helper script.
type ScriptRunner interface {
	Run(ctx context.Context, name string, args ...string) scripts.Result
}

// Request describes the config to generate.
type Request struct {
	Name    string
	Android bool // tune the profile for the Android client
	Inline  bool // embed keys and certificates in the profile
}

// Created describes a generated profile.
type Created struct {
	Name       string
	ConfigPath string
}

// StepError reports a generation script that did not succeed.
type StepError struct {
	Step   string // "certificate" or "config"
	Detail string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s generation failed: %s", e.Step, e.Detail)
}

// Generator creates client profiles.
type Generator struct {
	Scripts    ScriptRunner
	PKIDir     string
	ClientsDir string
	Logger     *log.Logger
}

// Create issues a certificate for req.Name when none exists yet, then writes
// the client profile into ClientsDir.
func (g *Generator) Create(ctx context.Context, req Request) (Created, error) {
	name := strings.TrimSpace(req.Name)
	if err := ValidateName(name); err != nil {
		return Created{}, err
	}
	l := g.Logger
	if l == nil {
		l = log.New(io.Discard)
	}

	exists, err := g.certExists(name)
	if err != nil {
		return Created{}, err
	}
	if !exists {
		l.Info("issuing client certificate", "client", name)
		if res := g.Scripts.Run(ctx, certScript, "--client", name); !res.OK {
			l.Warn("certificate generation failed", "client", name, "detail", res.Message())
			return Created{}, &StepError{Step: "certificate", Detail: res.Message()}
		}
	}

	args := []string{"--client", name}
	if req.Android {
		args = append(args, "--android")
	}
	if req.Inline {
		args = append(args, "--include-keys")
	}
	args = append(args, "--output", g.ClientsDir)

	l.Info("generating client config", "client", name, "android", req.Android, "inline", req.Inline)
	if res := g.Scripts.Run(ctx, configScript, args...); !res.OK {
		l.Warn("config generation failed", "client", name, "detail", res.Message())
		return Created{}, &StepError{Step: "config", Detail: res.Message()}
	}
	return Created{Name: name, ConfigPath: filepath.Join(g.ClientsDir, name+".ovpn")}, nil
}

func (g *Generator) certExists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(g.PKIDir, "clients", name+".crt"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("check client certificate: %w", err)
}
