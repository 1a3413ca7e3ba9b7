package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vpnconsole/vpnconsole/internal/dotenv"
	"github.com/vpnconsole/vpnconsole/internal/service"
	"github.com/vpnconsole/vpnconsole/internal/ui"
	"github.com/vpnconsole/vpnconsole/internal/version"
)

// ServeCmd runs the HTTP API until SIGINT or SIGTERM.
type ServeCmd struct {
	Listen string `env:"CONSOLE_LISTEN" help:"Listen address (overrides the config file)."`
}

func (c *ServeCmd) Run(globals *CLI) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	env, err := dotenv.LoadEnviron(globals.EnvFile)
	if err != nil {
		return err
	}

	s, err := newStack(cfg, nil, env, logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting", "version", version.String(), "services", len(s.topo.Services()))
	return s.console.Serve(ctx, cfg.Listen)
}

// CheckCmd probes every service once. It exits non-zero when any service is
// not up.
type CheckCmd struct {
	Timeout time.Duration `default:"30s" help:"Overall deadline."`
}

func (c *CheckCmd) Run(globals *CLI) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	s, err := newStack(cfg, nil, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	snap := s.status.Snapshot(ctx)

	fmt.Println(renderSnapshot(s.topo, snap))
	for _, st := range snap.Services {
		if st.Status != service.StatusUp {
			return fmt.Errorf("not all services are up")
		}
	}
	return nil
}

// renderSnapshot lays snap out in topology order.
func renderSnapshot(topo *service.Topology, snap service.Snapshot) string {
	rows := make([][]string, 0, len(snap.Services))
	for _, svc := range topo.Services() {
		st := snap.Services[svc.ID]
		rows = append(rows, []string{svc.ID, ui.Dot(st.Status) + " " + string(st.Status), string(st.State), st.Ports})
	}
	return ui.Table([]string{"SERVICE", "STATUS", "STATE", "PORTS"}, rows)
}

// DumpCmd prints the effective configuration as YAML.
type DumpCmd struct{}

func (c *DumpCmd) Run(globals *CLI) error {
	cfg, _, err := globals.load()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// VersionCmd prints version info.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("consoled %s\n", version.String())
	return nil
}
