package cmd

import (
	"context"
	"os"

	"github.com/halvar/credkeeper/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds the root command and runs it under the given context so an
// interrupt can wind down an in-flight refresh cleanly.
func Execute(ctx context.Context) {
	rootCmd := createRootCmd()

	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "credkeeper",
		Short: "Keep authenticated sessions to external portals from expiring",
	}

	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath(), "Path to the configuration file")

	rootCmd.AddCommand(
		checkCmd(),
		refreshCmd(),
		restoreCmd(),
		pruneCmd(),
		initCmd(),
		watchCmd(),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}
