package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/halvar/credkeeper/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// main is the entry point of the application.
// It sets up logging based on the DEBUG_CREDKEEPER environment variable,
// wires interrupt handling into a cancellable context, and executes the root command.
func main() {
	// If the DEBUG_CREDKEEPER environment variable is set, enable debug logging
	// to stderr, otherwise log at info level.
	if os.Getenv("DEBUG_CREDKEEPER") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// A first interrupt cancels the context so an in-flight refresh can release
	// its browser session and finish its backup/save sequence. A second
	// interrupt exits immediately.
	ctx, cancel := context.WithCancel(context.Background())
	stopChan := make(chan os.Signal, 2)
	signal.Notify(stopChan, os.Interrupt)
	go listenForInterrupt(stopChan, cancel)

	cmd.Execute(ctx)
}

// listenForInterrupt cancels the root context on the first interrupt signal
// and force-exits on the second.
func listenForInterrupt(stopChan chan os.Signal, cancel context.CancelFunc) {
	<-stopChan
	log.Warn().Msg("Interrupt received. Finishing in-flight refresh, press Ctrl+C again to force exit.")
	cancel()
	<-stopChan
	log.Fatal().Msg("Second interrupt received. Exiting immediately.")
}
