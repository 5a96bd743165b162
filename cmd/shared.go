package cmd

import (
	"context"
	"os"

	"github.com/halvar/credkeeper/browser"
	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/db"
	"github.com/halvar/credkeeper/notify"
	"github.com/halvar/credkeeper/orchestrator"
	"github.com/halvar/credkeeper/store"
	"github.com/halvar/credkeeper/strategy"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// runtime bundles the wired collaborators a command needs. Build one with
// newRuntime and always defer close.
type runtime struct {
	cfg      *config.Config
	store    *store.Store
	orch     *orchestrator.Orchestrator
	notifier *notify.Dispatcher

	gdb      *gorm.DB
	fileSink *notify.FileSink
}

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return config.DefaultPath()
	}
	return path
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath(cmd))
}

// newRuntime loads the configuration and wires the store, history journal,
// notification sinks, and orchestrator together.
func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.StateDir, cfg.BackupDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ScreenshotDir, 0o750); err != nil {
		log.Warn().Err(err).Str("dir", cfg.ScreenshotDir).Msg("Failed to create screenshot directory")
	}

	rt := &runtime{cfg: cfg, store: st}

	gdb, err := db.Open(cfg.HistoryDB)
	if err != nil {
		return nil, err
	}
	rt.gdb = gdb

	sinks := []notify.Notifier{notify.NewConsoleSink()}
	if cfg.NotifyFile != "" {
		fileSink, err := notify.NewFileSink(cfg.NotifyFile)
		if err != nil {
			return nil, err
		}
		rt.fileSink = fileSink
		sinks = append(sinks, fileSink)
	}
	rt.notifier = notify.NewDispatcher(sinks...)

	rt.orch = orchestrator.New(cfg, st, openSession, db.NewHistoryRepository(gdb), rt.notifier)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.gdb != nil {
		if err := db.Close(rt.gdb); err != nil {
			log.Warn().Err(err).Msg("Failed to close the history database")
		}
	}
	if rt.fileSink != nil {
		if err := rt.fileSink.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close the notification file")
		}
	}
}

// openSession adapts the browser package to the strategy session contract.
func openSession(ctx context.Context, headless bool) (strategy.BrowserSession, error) {
	return browser.Open(ctx, browser.Options{Headless: headless})
}
