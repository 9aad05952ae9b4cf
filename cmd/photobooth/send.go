package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foreach/photobooth/internal/config"
	"github.com/foreach/photobooth/internal/console/client"
	"github.com/foreach/photobooth/internal/control"
)

type sendOptions struct {
	host    string
	port    int
	prefix  string
	httpURL string
	token   string
}

func newSendCmd() *cobra.Command {
	opts := sendOptions{token: os.Getenv("PHOTOBOOTH_TOKEN")}
	cmd := &cobra.Command{
		Use:   "send <trigger> [args...]",
		Short: "Send one trigger to a running booth",
		Long: `Send one trigger to a running booth over OSC, or over HTTP with --http.

Triggers: start, reset, next, gain <value>, exponent <value>.`,
		Example: "  photobooth send start\n  photobooth send gain 1.4 --http http://127.0.0.1:8080",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTrigger(args)
			if err != nil {
				return err
			}
			var sender interface{ Send(control.Trigger) error }
			if opts.httpURL != "" {
				sender = client.NewHTTPClient(opts.httpURL, opts.token)
			} else {
				sender = control.NewClient(opts.host, opts.port, opts.prefix)
			}
			if err := sender.Send(t); err != nil {
				return fmt.Errorf("send %s: %w", t, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", t)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "127.0.0.1", "booth OSC host")
	f.IntVar(&opts.port, "port", config.DefaultControlPort, "booth OSC port")
	f.StringVar(&opts.prefix, "prefix", "", "OSC address prefix")
	f.StringVar(&opts.httpURL, "http", "", "send through the HTTP API at this base URL instead of OSC")
	f.StringVar(&opts.token, "token", opts.token, "auth token for --http (default $PHOTOBOOTH_TOKEN)")
	return cmd
}

func parseTrigger(args []string) (control.Trigger, error) {
	values := make([]float64, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return control.Trigger{}, fmt.Errorf("argument %q is not a number", a)
		}
		values = append(values, v)
	}
	return control.Parse(args[0], values...)
}
