package cmd

import (
	"os"

	"github.com/halvar/credkeeper/store"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// restoreCmd rolls a target's auth state back to a backup. Without
// --timestamp the newest backup is restored.
func restoreCmd() *cobra.Command {
	var (
		service   string
		account   string
		timestamp string
		list      bool
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Roll a session's auth state back to a backup",
		Run: func(cmd *cobra.Command, args []string) {
			runRestore(cmd, service, account, timestamp, list)
		},
	}
	cmd.Flags().StringVarP(&service, "service", "s", "", "Service to restore")
	cmd.Flags().StringVarP(&account, "account", "a", "", "Account to restore")
	cmd.Flags().StringVarP(&timestamp, "timestamp", "t", "", "Backup timestamp to restore (as shown by --list)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List available backups instead of restoring")
	if err := cmd.MarkFlagRequired("service"); err != nil {
		log.Error().Err(err).Msg("Failed to mark 'service' flag as required")
	}
	return cmd
}

func runRestore(cmd *cobra.Command, service, account, timestamp string, list bool) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	backups, err := rt.store.Backups(service, account)
	if err != nil {
		cmd.PrintErrln("Error: Unable to list backups. Please check the logs for details.")
		log.Error().Err(err).Msg("Failed to list backups")
		return
	}
	if len(backups) == 0 {
		cmd.Printf("No backups found for %s.\n", targetLabel(service, account))
		return
	}

	if list {
		printBackupTable(backups)
		return
	}

	handle := backups[0]
	if timestamp != "" {
		found := false
		for _, b := range backups {
			if b.Timestamp.Format(store.BackupTimeFormat) == timestamp {
				handle = b
				found = true
				break
			}
		}
		if !found {
			cmd.PrintErrf("Error: No backup with timestamp %s. Use --list to see available backups.\n", timestamp)
			return
		}
	}

	if err := rt.store.Restore(service, account, handle); err != nil {
		cmd.PrintErrln("Error: Restore failed. Please check the logs for details.")
		log.Error().Err(err).Str("service", service).Msg("Restore failed")
		return
	}
	cmd.Printf("Restored %s to backup %s.\n", targetLabel(service, account), handle.Timestamp.Format(store.BackupTimeFormat))
}

func printBackupTable(backups []store.BackupHandle) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Timestamp", "Taken At", "Location"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, b := range backups {
		table.Append([]string{
			b.Timestamp.Format(store.BackupTimeFormat),
			b.Timestamp.Format("2006-01-02 15:04:05"),
			b.Dir,
		})
	}
	table.Render()
}
