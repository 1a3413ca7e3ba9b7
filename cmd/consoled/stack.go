package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/vpnconsole/vpnconsole/internal/clientcfg"
	"github.com/vpnconsole/vpnconsole/internal/config"
	"github.com/vpnconsole/vpnconsole/internal/console"
	"github.com/vpnconsole/vpnconsole/internal/logs"
	"github.com/vpnconsole/vpnconsole/internal/metrics"
	"github.com/vpnconsole/vpnconsole/internal/scripts"
	"github.com/vpnconsole/vpnconsole/internal/service"
	"github.com/vpnconsole/vpnconsole/internal/version"
)

// stack is the fully wired daemon.
type stack struct {
	topo    *service.Topology
	status  *service.Aggregator
	console *console.Console
	metrics *metrics.Metrics
	closer  io.Closer
}

// Close releases the control-plane connection, if any.
func (s *stack) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// newControlPlane returns the driver selected by cfg. The returned closer is
// nil for the CLI driver.
func newControlPlane(cfg config.ControlPlaneConfig, logger *log.Logger) (service.ControlPlane, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverAPI:
		api, err := service.NewDockerAPI(cfg.DockerHost)
		if err != nil {
			return nil, nil, fmt.Errorf("docker api: %w", err)
		}
		logger.Info("control plane", "driver", "api", "host", cfg.DockerHost)
		return api, api, nil
	default:
		d := &service.DockerCLI{Binary: cfg.DockerBinary}
		if cfg.DockerHost != "" {
			d.Env = []string{"DOCKER_HOST=" + cfg.DockerHost}
		}
		logger.Info("control plane", "driver", "cli", "binary", d.Binary)
		return d, nil, nil
	}
}

// newStack wires every component from cfg. cp, when non-nil, replaces the
// configured driver.
func newStack(cfg *config.Config, cp service.ControlPlane, env []string, logger *log.Logger) (*stack, error) {
	topo, err := cfg.Topology()
	if err != nil {
		return nil, err
	}

	var closer io.Closer
	if cp == nil {
		cp, closer, err = newControlPlane(cfg.ControlPlane, logger)
		if err != nil {
			return nil, err
		}
	}
	m := metrics.New()
	cp = m.InstrumentControlPlane(cp)

	t := cfg.Timeouts
	probes := service.ProbeSet{
		Network: &service.NetworkProbe{Timeout: t.Probe.D(), Logger: logger.With("component", "probe")},
		ControlPlane: &service.ControlPlaneProbe{
			ControlPlane: cp,
			Timeout:      t.Query.D(),
			Logger:       logger.With("component", "probe"),
		},
	}
	runner := &scripts.Runner{Dir: cfg.ScriptsDir, Timeout: t.Script.D(), Env: env}
	status := service.NewAggregator(topo, probes, 0)

	c := console.New(console.Options{
		Status: status,
		Actions: service.NewDispatcher(topo, cp, service.DispatcherOptions{
			Timeout:     t.Action.D(),
			Parallelism: cfg.ActionParallelism,
			Logger:      logger.With("component", "actions"),
		}),
		Logs: logs.NewAggregator(topo, cp, logs.Options{
			ExistsTimeout: t.LogExists.D(),
			FetchTimeout:  t.LogFetch.D(),
			Logger:        logger.With("component", "logs"),
		}),
		Clients: &clientcfg.Generator{
			Scripts:    runner,
			PKIDir:     cfg.PKIDir,
			ClientsDir: cfg.ClientsDir,
			Logger:     logger.With("component", "clients"),
		},
		Scripts:       runner,
		StatusFile:    cfg.StatusFile,
		UptimeTimeout: t.Uptime.D(),
		Metrics:       m,
		Logger:        logger,
		Version:       version.Version,
	})
	return &stack{topo: topo, status: status, console: c, metrics: m, closer: closer}, nil
}
