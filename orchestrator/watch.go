package orchestrator

import (
	"context"
	"fmt"

	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Watch runs refresh sweeps on a cron schedule until the context is
// cancelled. Overlapping runs are skipped: a sweep that is still driving a
// manual login when the next tick fires must not spawn a second browser.
func (o *Orchestrator) Watch(ctx context.Context, cronExpr string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	_, err := c.AddFunc(cronExpr, func() {
		log.Info().Str("schedule", cronExpr).Msg("Scheduled refresh sweep starting")
		o.RefreshNeeded(ctx, false)
	})
	if err != nil {
		return clierr.New(clierr.Configuration, fmt.Sprintf("invalid cron expression %q", cronExpr), err)
	}

	c.Start()
	log.Info().Str("schedule", cronExpr).Msg("Watch mode started")

	<-ctx.Done()
	// Stop schedules no further runs and waits for the in-flight one.
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts the process logger to the cron scheduler's interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
