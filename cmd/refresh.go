package cmd

import (
	"fmt"

	"github.com/halvar/credkeeper/notify"
	"github.com/halvar/credkeeper/strategy"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// refreshCmd re-authenticates sessions. Without --service it sweeps every
// enabled service; with --service it refreshes a single target.
func refreshCmd() *cobra.Command {
	var (
		service string
		account string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh expiring sessions",
		Run: func(cmd *cobra.Command, args []string) {
			if service != "" {
				runRefreshOne(cmd, service, account, force)
				return
			}
			if account != "" {
				cmd.PrintErrln("Error: --account requires --service.")
				return
			}
			runRefreshSweep(cmd, force)
		},
	}
	cmd.Flags().StringVarP(&service, "service", "s", "", "Refresh only this service")
	cmd.Flags().StringVarP(&account, "account", "a", "", "Refresh only this account (requires --service)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Refresh even when the session is still valid")
	return cmd
}

func runRefreshSweep(cmd *cobra.Command, force bool) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	targets := 0
	for _, name := range rt.cfg.EnabledServices() {
		targets += len(rt.cfg.Services[name].AccountList())
	}
	if targets == 0 {
		cmd.Println("No enabled services configured.")
		return
	}

	// The bar advances as result events come through the notifier, so it
	// tracks the sweep no matter how the orchestrator schedules targets.
	bar := progressbar.NewOptions(targets,
		progressbar.OptionSetDescription("Refreshing sessions"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	rt.orch = rt.orch.WithNotifier(notify.NewDispatcher(rt.notifier, progressSink{bar}))

	report := rt.orch.RefreshNeeded(cmd.Context(), force)
	_ = bar.Finish()

	cmd.Printf("Refresh sweep finished: %d succeeded, %d failed, %d skipped.\n",
		report.Succeeded, report.Failed, report.Skipped)
	for _, res := range report.Results {
		if !res.Success {
			cmd.Printf("  %s: [%s] %s\n", targetLabel(res.Service, res.Account), res.Classification, res.Message)
		}
	}
}

func runRefreshOne(cmd *cobra.Command, service, account string, force bool) {
	rt, err := newRuntime(cmd)
	if err != nil {
		cmd.PrintErrln("Error:", err)
		log.Error().Err(err).Msg("Failed to initialize")
		return
	}
	defer rt.close()

	res := rt.orch.RefreshOne(cmd.Context(), service, account, force)
	printResult(cmd, res)
}

func printResult(cmd *cobra.Command, res strategy.Result) {
	label := targetLabel(res.Service, res.Account)
	if res.Success {
		cmd.Printf("%s: %s\n", label, res.Message)
		return
	}
	cmd.PrintErrf("%s failed: [%s] %s\n", label, res.Classification, res.Message)
}

func targetLabel(service, account string) string {
	if account == "" {
		return service
	}
	return fmt.Sprintf("%s/%s", service, account)
}

// progressSink advances the sweep progress bar on every result event.
type progressSink struct {
	bar *progressbar.ProgressBar
}

func (p progressSink) Notify(event notify.Event) error {
	if event.Kind == notify.KindResult {
		return p.bar.Add(1)
	}
	return nil
}
