package cmd

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// pruneCmd deletes backups older than the retention window. The newest
// backup of every target always survives so a rollback stays possible.
func pruneCmd() *cobra.Command {
	var olderThanDays int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			runPrune(cmd, olderThanDays)
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete backups older than this many days (default: the configured retention)")
	return cmd
}

func runPrune(cmd *cobra.Command, olderThanDays int) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	if olderThanDays <= 0 {
		olderThanDays = rt.cfg.RetentionDays
	}

	removed, err := rt.store.Prune(time.Duration(olderThanDays) * 24 * time.Hour)
	if err != nil {
		cmd.PrintErrln("Error: Pruning failed. Please check the logs for details.")
		log.Error().Err(err).Msg("Backup pruning failed")
		return
	}
	cmd.Printf("Pruned %d backups older than %d days.\n", removed, olderThanDays)
}
