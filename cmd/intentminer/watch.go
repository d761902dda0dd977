package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"intentminer/internal/ingest"
)

// watchCmd re-runs discovery whenever the input file changes
var watchCmd = &cobra.Command{
	Use:   "watch [input.json]",
	Short: "Watch an input file and re-run discovery on change",
	Long: `Runs discovery once, then watches the input file and re-runs the full
pipeline each time the file settles after a change. Rapid rewrites are
debounced into a single run. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	input := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial pass; a failure here is worth reporting but should not kill
	// the watch, the file may simply not be complete yet.
	if err := discoverOnce(ctx, input); err != nil {
		logger.Warn("Initial discovery failed, watching anyway", zap.Error(err))
		fmt.Fprintf(os.Stderr, "initial run failed: %v\n", err)
	}

	watcher, err := ingest.NewWatcher(input, func(ctx context.Context) {
		if err := discoverOnce(ctx, input); err != nil {
			logger.Warn("Discovery run failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", input)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	<-sigCh

	logger.Info("Received shutdown signal")
	cancel()
	return nil
}
