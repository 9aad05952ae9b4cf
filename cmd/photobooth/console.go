package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/console/app"
	"github.com/foreach/photobooth/internal/console/client"
	"github.com/foreach/photobooth/internal/control"
)

type consoleOptions struct {
	url     string
	token   string
	via     string
	oscHost string
	oscPort int
	prefix  string
}

func newConsoleCmd() *cobra.Command {
	opts := consoleOptions{token: os.Getenv("PHOTOBOOTH_TOKEN")}
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Operator console: live booth state and keyboard triggers",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runConsole(opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "ws://127.0.0.1:8080/ws", "booth websocket URL")
	f.StringVar(&opts.token, "token", opts.token, "auth token (default $PHOTOBOOTH_TOKEN)")
	f.StringVar(&opts.via, "via", "ws", "trigger transport: ws, http or osc")
	f.StringVar(&opts.oscHost, "osc-host", "127.0.0.1", "booth OSC host when --via osc")
	f.IntVar(&opts.oscPort, "osc-port", config.DefaultControlPort, "booth OSC port when --via osc")
	f.StringVar(&opts.prefix, "prefix", "", "OSC address prefix when --via osc")
	return cmd
}

func runConsole(opts consoleOptions) error {
	wsc := client.NewWSClient(opts.url, opts.token)
	httpc := client.NewHTTPClient(client.HTTPBase(opts.url), opts.token)

	var sender app.Sender
	switch opts.via {
	case "ws":
		sender = wsc
	case "http":
		sender = httpc
	case "osc":
		sender = control.NewClient(opts.oscHost, opts.oscPort, opts.prefix)
	default:
		return fmt.Errorf("unknown transport %q (want ws, http or osc)", opts.via)
	}

	p := tea.NewProgram(app.New(wsc, httpc, sender), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
