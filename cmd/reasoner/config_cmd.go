package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reasoner/internal/config"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := cli.cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := cli.meta.ConfigFile
			if source == "" {
				source = "defaults"
			}
			fmt.Fprintf(out, "# source: %s\n", source)
			_, err = out.Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "reasoner.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteFile(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("wrote"), path)
			return nil
		},
	}

	cmd.AddCommand(show, initCmd)
	return cmd
}
