package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foreach/photobooth/internal/config"
)

func newCheckConfigCmd() *cobra.Command {
	var printCfg bool
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if printCfg {
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "%s: ok\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printCfg, "print", false, "print the effective config (defaults and env applied)")
	return cmd
}
