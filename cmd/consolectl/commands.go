package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"

	"github.com/vpnconsole/vpnconsole/internal/apiclient"
	"github.com/vpnconsole/vpnconsole/internal/clientcfg"
	"github.com/vpnconsole/vpnconsole/internal/tui"
	"github.com/vpnconsole/vpnconsole/internal/ui"
	"github.com/vpnconsole/vpnconsole/internal/version"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// StatusCmd prints the raw status response.
type StatusCmd struct{}

func (c *StatusCmd) Run(globals *CLI) error {
	st, err := globals.client().Status(context.Background())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// ActionCmd applies start, stop or restart; the verb is the command name.
type ActionCmd struct {
	Target string `arg:"" default:"all" help:"Service id or \"all\"."`
}

func (c *ActionCmd) Run(kctx *kong.Context, globals *CLI) error {
	action := kctx.Selected().Name
	var res *apiclient.ActionResult
	err := tui.RunSteps(context.Background(), []tui.Step{{
		Title: fmt.Sprintf("Applying %s to %s", action, c.Target),
		Run: func(ctx context.Context, note func(string)) error {
			var err error
			res, err = globals.client().Action(ctx, action, c.Target)
			if err == nil {
				note(fmt.Sprintf("%s %s: %d service(s)", action, c.Target, len(res.Outcomes)))
			}
			return err
		},
	}})
	if err != nil {
		return err
	}
	for _, o := range res.Outcomes {
		fmt.Println(ui.Outcome(o))
	}
	if !res.AllSucceeded {
		return errors.New("one or more services failed")
	}
	return nil
}

// LogsCmd prints the log bundle for a target.
type LogsCmd struct {
	Target string `arg:"" default:"all" help:"Service id, log source or \"all\"."`
	Lines  int    `short:"n" default:"100" help:"Lines per container (1-10000)."`
}

func (c *LogsCmd) Run(globals *CLI) error {
	out, err := globals.client().Logs(context.Background(), c.Target, c.Lines)
	if err != nil {
		return err
	}
	if len(out.Sections) == 0 {
		fmt.Print(out.Logs)
		return nil
	}
	for _, s := range out.Sections {
		fmt.Println(ui.Header(s.Header))
		if s.Body != "" {
			fmt.Println(s.Body)
		}
		fmt.Println()
	}
	return nil
}

// ClientsCmd lists connected clients.
type ClientsCmd struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (c *ClientsCmd) Run(globals *CLI) error {
	out, err := globals.client().Clients(context.Background())
	if err != nil {
		return err
	}
	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(out.Clients)
	}
	if out.Count == 0 {
		fmt.Println("No clients connected.")
		return nil
	}
	rows := make([][]string, 0, len(out.Clients))
	for _, cl := range out.Clients {
		rows = append(rows, []string{
			cl.Name, cl.RealAddress, cl.VirtualAddress,
			ui.Bytes(cl.BytesReceived), ui.Bytes(cl.BytesSent), cl.ConnectedSince,
		})
	}
	fmt.Println(ui.Table([]string{"NAME", "REAL ADDRESS", "VIRTUAL", "RX", "TX", "SINCE"}, rows))
	return nil
}

// ClientCmd groups client profile commands.
type ClientCmd struct {
	Create ClientCreateCmd `cmd:"" help:"Generate a client profile."`
}

// ClientCreateCmd generates a profile. Without a name it prompts for one.
type ClientCreateCmd struct {
	Name    string `arg:"" optional:"" help:"Client name (letters, digits, '-' and '_')."`
	Android bool   `help:"Tune the profile for the Android client."`
	Inline  bool   `default:"true" negatable:"" help:"Embed keys and certificates in the profile."`
}

func (c *ClientCreateCmd) Run(globals *CLI) error {
	req := apiclient.CreateRequest{Name: c.Name, Android: c.Android, Inline: c.Inline}
	if req.Name == "" {
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Client name").
				Value(&req.Name).
				Validate(clientcfg.ValidateName),
			huh.NewConfirm().
				Title("Android client?").
				Value(&req.Android),
			huh.NewConfirm().
				Title("Embed keys in the profile?").
				Value(&req.Inline),
		))
		if err := form.Run(); err != nil {
			return err
		}
	}
	if err := clientcfg.ValidateName(req.Name); err != nil {
		return err
	}

	api := globals.client()
	var out *apiclient.Created
	err := tui.RunSteps(context.Background(), []tui.Step{
		{Title: "Checking server", Run: func(ctx context.Context, note func(string)) error {
			h, err := api.Health(ctx)
			if err == nil {
				note("Server " + h.Version + " is healthy")
			}
			return err
		}},
		{Title: "Generating profile for " + req.Name, Run: func(ctx context.Context, note func(string)) error {
			var err error
			out, err = api.CreateClient(ctx, req)
			if err == nil {
				note(out.Message)
			}
			return err
		}},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
		return err
	}
	fmt.Println(ui.Row("Profile", out.ConfigPath))
	return nil
}

// VersionCmd prints client and server versions.
type VersionCmd struct{}

func (c *VersionCmd) Run(globals *CLI) error {
	fmt.Printf("consolectl %s\n", version.String())
	h, err := globals.client().Health(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Warn("server unreachable: "+err.Error()))
		return nil
	}
	fmt.Printf("consoled   %s\n", h.Version)
	return nil
}
