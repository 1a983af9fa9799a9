package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/dashboard"
	"github.com/mhub-dev/mhub/internal/hub"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [config-file]",
		Short: "Start the broker and show a live stats dashboard",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStats,
	}
}

// runStats starts its own Hub and listeners, same as run, but attaches a
// terminal dashboard instead of blocking on a signal. There is no separate
// running broker process to attach to: mhub's wire protocol has no admin
// channel, so "stats" always owns the hub it displays.
func runStats(cmd *cobra.Command, args []string) error {
	configPath := resolveConfigPath(cmd, args, "mhub.json")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error: %w", err)
	}

	logger := newLogger(cfg.Logging)

	h, err := hub.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize hub", "error", err)
		os.Exit(1)
	}
	defer h.Close()

	closers, errCh := startListeners(cfg, h, logger)
	defer func() {
		for _, c := range closers {
			_ = c()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := <-errCh; err != nil {
			logger.Error("listener error", "error", err)
			cancel()
		}
	}()

	return dashboard.Run(ctx, h)
}
