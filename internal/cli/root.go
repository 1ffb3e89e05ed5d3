// Package cli defines the service's command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	var configPath string

	root := &cobra.Command{
		Use:   "trivio",
		Short: "Realtime multiplayer trivia session core",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))

	return root.Execute()
}
