// Package config loads the console's configuration: where the control plane
// lives, which services make up the deployment, and how long each external
// call may take.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/vpnconsole/vpnconsole/internal/service"
)

// Control plane drivers.
const (
	DriverCLI = "cli"
	DriverAPI = "api"
)

// Config is the daemon configuration. It is read once at startup and never
// modified afterwards.
type Config struct {
	Listen       string             `yaml:"listen" toml:"listen" validate:"required"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane" toml:"control_plane"`
	StatusFile   string             `yaml:"status_file" toml:"status_file" validate:"required"`
	ScriptsDir   string             `yaml:"scripts_dir" toml:"scripts_dir" validate:"required"`
	PKIDir       string             `yaml:"pki_dir" toml:"pki_dir" validate:"required"`
	ClientsDir   string             `yaml:"clients_dir" toml:"clients_dir" validate:"required"`
	Timeouts     Timeouts           `yaml:"timeouts" toml:"timeouts"`
	// ActionParallelism is how many services an "all" action touches at
	// once. 1 (the default) applies actions one after another.
	ActionParallelism int               `yaml:"action_parallelism" toml:"action_parallelism" validate:"gte=0,lte=64"`
	Services          []ServiceConfig   `yaml:"services" toml:"services" validate:"dive"`
	LogSources        []LogSourceConfig `yaml:"log_sources" toml:"log_sources" validate:"dive"`
}

// ControlPlaneConfig selects how containers are reached.
type ControlPlaneConfig struct {
	Driver       string `yaml:"driver" toml:"driver" validate:"oneof=cli api"`
	DockerBinary string `yaml:"docker_binary,omitempty" toml:"docker_binary,omitempty"`
	DockerHost   string `yaml:"docker_host,omitempty" toml:"docker_host,omitempty"`
}

// Timeouts bounds every external call.
type Timeouts struct {
	Probe     Duration `yaml:"probe" toml:"probe" validate:"gte=0"`
	Query     Duration `yaml:"query" toml:"query" validate:"gte=0"`
	Action    Duration `yaml:"action" toml:"action" validate:"gte=0"`
	LogExists Duration `yaml:"log_exists" toml:"log_exists" validate:"gte=0"`
	LogFetch  Duration `yaml:"log_fetch" toml:"log_fetch" validate:"gte=0"`
	Script    Duration `yaml:"script" toml:"script" validate:"gte=0"`
	Uptime    Duration `yaml:"uptime" toml:"uptime" validate:"gte=0"`
}

// ServiceConfig declares one managed service.
type ServiceConfig struct {
	ID        string `yaml:"id" toml:"id" validate:"required"`
	Name      string `yaml:"name,omitempty" toml:"name,omitempty"`
	Container string `yaml:"container" toml:"container" validate:"required"`
	Ports     string `yaml:"ports,omitempty" toml:"ports,omitempty"`
	Probe     string `yaml:"probe,omitempty" toml:"probe,omitempty" validate:"omitempty,oneof=network control-plane"`
	Network   string `yaml:"network,omitempty" toml:"network,omitempty" validate:"omitempty,oneof=tcp tcp4 tcp6 udp udp4 udp6"`
	Address   string `yaml:"address,omitempty" toml:"address,omitempty" validate:"required_if=Probe network"`
}

// LogSourceConfig declares a container that is only a log target.
type LogSourceConfig struct {
	ID        string `yaml:"id" toml:"id" validate:"required"`
	Container string `yaml:"container" toml:"container" validate:"required"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Default returns the stock deployment: the OpenVPN endpoint probed over UDP,
// the two FRP processes probed through docker, and the web console as an
// extra log source.
func Default() *Config {
	return &Config{
		Listen:       ":5000",
		ControlPlane: ControlPlaneConfig{Driver: DriverCLI},
		StatusFile:   "/var/log/openvpn/openvpn-status.log",
		ScriptsDir:   "/app/scripts",
		PKIDir:       "/app/pki",
		ClientsDir:   "/app/data/clients",
		Timeouts: Timeouts{
			Probe:     Duration(time.Second),
			Query:     Duration(10 * time.Second),
			Action:    Duration(30 * time.Second),
			LogExists: Duration(10 * time.Second),
			LogFetch:  Duration(30 * time.Second),
			Script:    Duration(30 * time.Second),
			Uptime:    Duration(5 * time.Second),
		},
		ActionParallelism: 1,
		Services: []ServiceConfig{
			{ID: "openvpn", Name: "OpenVPN", Container: "openvpn", Ports: "1194/udp", Probe: string(service.ProbeNetwork), Network: "udp", Address: "localhost:1194"},
			{ID: "frpc", Name: "FRP Client", Container: "frpc", Ports: "various", Probe: string(service.ProbeControlPlane)},
			{ID: "frps", Name: "FRP Server", Container: "frps", Ports: "various", Probe: string(service.ProbeControlPlane)},
		},
		LogSources: []LogSourceConfig{{ID: "web", Container: "openvpn-web"}},
	}
}

// Load reads the config file at path. Files ending in .toml are decoded as
// TOML, anything else as YAML. Unset fields take their Default values; an
// empty path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw config data in the given format ("yaml" or "toml"),
// fills defaults and validates the result.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	switch format {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.ControlPlane.Driver == "" {
		c.ControlPlane.Driver = def.ControlPlane.Driver
	}
	if c.StatusFile == "" {
		c.StatusFile = def.StatusFile
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = def.ScriptsDir
	}
	if c.PKIDir == "" {
		c.PKIDir = def.PKIDir
	}
	if c.ClientsDir == "" {
		c.ClientsDir = def.ClientsDir
	}
	for _, t := range []struct{ dst, src *Duration }{
		{&c.Timeouts.Probe, &def.Timeouts.Probe},
		{&c.Timeouts.Query, &def.Timeouts.Query},
		{&c.Timeouts.Action, &def.Timeouts.Action},
		{&c.Timeouts.LogExists, &def.Timeouts.LogExists},
		{&c.Timeouts.LogFetch, &def.Timeouts.LogFetch},
		{&c.Timeouts.Script, &def.Timeouts.Script},
		{&c.Timeouts.Uptime, &def.Timeouts.Uptime},
	} {
		if *t.dst == 0 {
			*t.dst = *t.src
		}
	}
	if c.ActionParallelism == 0 {
		c.ActionParallelism = def.ActionParallelism
	}
	if len(c.Services) == 0 {
		c.Services = def.Services
		if c.LogSources == nil {
			c.LogSources = def.LogSources
		}
	}
	for i := range c.Services {
		if c.Services[i].Probe == "" {
			c.Services[i].Probe = string(service.ProbeControlPlane)
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the services form a valid
// topology.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = describe(fe)
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Topology(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value())
}

// Topology builds the immutable service topology from the config.
func (c *Config) Topology() (*service.Topology, error) {
	services := make([]service.Service, len(c.Services))
	for i, s := range c.Services {
		services[i] = service.Service{
			ID:        s.ID,
			Name:      s.Name,
			Container: s.Container,
			Ports:     s.Ports,
			Probe:     service.ProbeKind(s.Probe),
			Network:   s.Network,
			Address:   s.Address,
		}
	}
	sources := make([]service.LogSource, len(c.LogSources))
	for i, l := range c.LogSources {
		sources[i] = service.LogSource{ID: l.ID, Container: l.Container}
	}
	return service.NewTopology(services, sources)
}
