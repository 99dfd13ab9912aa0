package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the controlplane command tree: one parent with
// independent serve/install/version subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "controlplane",
		Short:         "controlplane resolves, executes, and remediates tool installs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
