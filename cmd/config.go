package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pseudocoder/inkwell/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the inkwell configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			created, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintf(out, "Config already exists at %s (left unchanged)\n", path)
				return nil
			}
			fmt.Fprintf(out, "Wrote default config to %s\n", path)
			return nil
		},
	})
	return cmd
}
