package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/hub"
	"github.com/mhub-dev/mhub/internal/transport"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [config-file]",
		Short: "Start the broker (default when no subcommand is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	closers, errCh := startListeners(cfg, h, logger)

	logger.Info("mhub broker starting", "version", version, "config", configPath, "listeners", len(closers))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("listener error", "error", err)
		}
	}

	for _, c := range closers {
		_ = c()
	}

	logger.Info("mhub broker stopped")
	return nil
}

// startListeners opens every configured listener, each serving in its own
// goroutine, and returns their Close funcs plus a channel that receives the
// first listener error (other than a clean shutdown).
func startListeners(cfg *config.Config, h *hub.Hub, logger *slog.Logger) ([]func() error, <-chan error) {
	errCh := make(chan error, len(cfg.Listen))
	closers := make([]func() error, 0, len(cfg.Listen))

	for _, spec := range cfg.Listen {
		spec := spec
		switch spec.Type {
		case "tcp":
			srv := transport.NewTCPServer(h, logger)
			if err := srv.Start(spec); err != nil {
				errCh <- fmt.Errorf("tcp listener: %w", err)
				continue
			}
			closers = append(closers, srv.Close)
		case "websocket", "":
			srv := transport.NewWebSocketServer(spec, h, logger)
			closers = append(closers, srv.Close)
			go func() {
				if err := srv.ListenAndServe(spec); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("websocket listener: %w", err)
				}
			}()
		default:
			errCh <- fmt.Errorf("listen: unknown transport %q", spec.Type)
		}
	}

	return closers, errCh
}
