package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/vpnconsole/vpnconsole/internal/apiclient"
)

// CLI is the top-level Kong struct.
type CLI struct {
	URL     string `short:"u" env:"CONSOLE_URL" default:"http://127.0.0.1:5000" help:"Console API base URL."`
	Timeout int    `default:"300" help:"Request timeout in seconds."`

	Status  StatusCmd  `cmd:"" help:"Print service status as JSON."`
	Dash    DashCmd    `cmd:"" help:"Live status dashboard."`
	Start   ActionCmd  `cmd:"" help:"Start a service (or all)."`
	Stop    ActionCmd  `cmd:"" help:"Stop a service (or all)."`
	Restart ActionCmd  `cmd:"" help:"Restart a service (or all)."`
	Logs    LogsCmd    `cmd:"" help:"Print recent logs."`
	Clients ClientsCmd `cmd:"" help:"List connected VPN clients."`
	Client  ClientCmd  `cmd:"" help:"Manage client profiles."`
	Version VersionCmd `cmd:"" help:"Print version."`
}

func main() {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("consolectl"),
		kong.Description("Control a VPN management console"),
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

func (g *CLI) client() *apiclient.Client {
	c := apiclient.New(g.URL)
	if g.Timeout > 0 {
		c.HTTP.Timeout = secs(g.Timeout)
	}
	return c
}
