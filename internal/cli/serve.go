package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pdfmend/internal/control"
)

func newServeCmd(opts *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recovery HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				opts.cfg.Server.Port = port
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := control.NewApp(ctx, opts.cfg, slog.Default())
			if err != nil {
				return fmt.Errorf("failed to initialize pdfmend: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("failed to start pdfmend: %w", err)
			}

			slog.Info("pdfmend started", "config", opts.cfgPath, "archive", opts.cfg.Archive.Backend)

			sig := <-sigChan
			slog.Info("Received signal, shutting down...", "signal", sig)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer shutdownCancel()

			if err := app.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("error during shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override server.port")
	return cmd
}
