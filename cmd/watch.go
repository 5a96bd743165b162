package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// watchCmd runs refresh sweeps on a schedule until interrupted.
func watchCmd() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run refresh sweeps on a schedule",
		Run: func(cmd *cobra.Command, args []string) {
			runWatch(cmd, schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "0 */6 * * *", "Cron expression for the sweep schedule")
	return cmd
}

func runWatch(cmd *cobra.Command, schedule string) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	cmd.Printf("Watching %d services on schedule %q. Press Ctrl+C to stop.\n",
		len(rt.cfg.EnabledServices()), schedule)
	if err := rt.orch.Watch(cmd.Context(), schedule); err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Watch mode failed")
	}
}
