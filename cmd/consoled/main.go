package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/vpnconsole/vpnconsole/internal/config"
	"github.com/vpnconsole/vpnconsole/internal/logging"
)

// CLI is the top-level Kong struct.
type CLI struct {
	Config    string `short:"c" env:"CONSOLE_CONFIG" type:"path" help:"Config file (.yaml or .toml). Built-in defaults when unset."`
	LogLevel  string `env:"CONSOLE_LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string `env:"CONSOLE_LOG_FORMAT" default:"text" enum:"text,json,logfmt" help:"Log format."`
	EnvFile   string `env:"CONSOLE_ENV_FILE" type:"path" help:"KEY=VALUE file passed to helper scripts."`

	Serve   ServeCmd   `cmd:"" help:"Run the console API."`
	Check   CheckCmd   `cmd:"" help:"Probe every service once and print the result."`
	Dump    DumpCmd    `cmd:"" name:"config" help:"Print the effective configuration."`
	Version VersionCmd `cmd:"" help:"Print version."`
}

func main() {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("consoled"),
		kong.Description("VPN management console daemon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			NoExpandSubcommands: true,
			Compact:             true,
		}),
	)
	if err != nil {
		panic(err)
	}

	args := os.Args[1:]
	if len(args) == 0 || (len(args) == 1 && args[0] == "help") {
		_, _ = k.Parse([]string{"--help"})
		os.Exit(0)
	}

	ctx, err := k.Parse(args)
	k.FatalIfErrorf(err)
	k.FatalIfErrorf(ctx.Run(&cli))
}

// load reads the config and builds the daemon logger.
func (g *CLI) load() (*config.Config, *log.Logger, error) {
	logger, err := logging.New(os.Stderr, g.LogLevel, g.LogFormat, "consoled")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
