package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path := a.configPath
				if path == "" {
					path = config.Path()
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
				return err
			},
		},
		&cobra.Command{
			Use:   "default",
			Short: "Print the default config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := io.WriteString(cmd.OutOrStdout(), config.DefaultTOML())
				return err
			},
		},
	)
	return cmd
}
