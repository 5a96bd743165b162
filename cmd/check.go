package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/halvar/credkeeper/orchestrator"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// checkCmd reports the expiration status of every enabled service without
// touching any stored state.
func checkCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show the expiration status of all sessions",
		Run: func(cmd *cobra.Command, args []string) {
			runCheck(cmd, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status report as JSON")
	return cmd
}

func runCheck(cmd *cobra.Command, asJSON bool) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	records, err := rt.orch.CheckAll(cmd.Context())
	if err != nil {
		cmd.PrintErrln("Error: Unable to compute session statuses. Please check the logs for details.")
		log.Error().Err(err).Msg("Status sweep failed")
		return
	}

	if asJSON {
		printStatusJSON(cmd, records)
		return
	}
	printStatusTable(records)
}

type statusRow struct {
	Service             string     `json:"service"`
	Account             string     `json:"account,omitempty"`
	Status              string     `json:"status"`
	LastRefreshedAt     *time.Time `json:"lastRefreshedAt"`
	DaysUntilExpiration float64    `json:"daysUntilExpiration"`
	Reason              string     `json:"reason"`
}

func printStatusJSON(cmd *cobra.Command, records []orchestrator.StatusRecord) {
	rows := make([]statusRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, statusRow{
			Service:             rec.Service,
			Account:             rec.Account,
			Status:              rec.Status.String(),
			LastRefreshedAt:     rec.LastRefreshedAt,
			DaysUntilExpiration: rec.DaysRemaining,
			Reason:              rec.Reason,
		})
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		cmd.PrintErrln("Error: Failed to encode the status report.")
		return
	}
	cmd.Println(string(data))
}

func printStatusTable(records []orchestrator.StatusRecord) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Service", "Account", "Status", "Last Refreshed", "Days Left", "Reason"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)

	for _, rec := range records {
		last := "never"
		daysLeft := "-"
		if rec.LastRefreshedAt != nil {
			last = rec.LastRefreshedAt.Format("2006-01-02 15:04")
			daysLeft = fmt.Sprintf("%.1f", rec.DaysRemaining)
		}
		account := rec.Account
		if account == "" {
			account = "default"
		}
		table.Append([]string{
			rec.Service,
			account,
			rec.Status.String(),
			last,
			daysLeft,
			rec.Reason,
		})
	}
	table.Render()
}
