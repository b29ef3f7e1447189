package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Running the binary without a
// subcommand starts the server.
func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "dispatchd",
		Short:         "Inspector assignment and dispatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newMigrateCmd(&cfgPath),
		newCandidatesCmd(&cfgPath),
		newDistanceCmd(),
		newTokenCmd(&cfgPath),
	)
	return root
}
