package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "lifecycled",
		Short: "Manages the lifecycle of WASM agents: deploy, hot-reload, validate, observe.",
	}

	root.AddCommand(
		newServeCommand(),
		newDeployCommand(),
		newReloadCommand(),
		newValidateCommand(),
		newStatusCommand(),
		newListCommand(),
	)

	return root
}

// setupSignalHandler cancels ctx on SIGINT/SIGTERM/SIGQUIT, mirroring the
// teacher's cmd/sidecar signal handling.
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
