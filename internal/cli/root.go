package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/pdfmend/internal/control"
	"github.com/vietddude/pdfmend/internal/core/config"
)

// options are the persistent flags and the configuration they resolve to.
type options struct {
	cfgPath string
	isDebug bool
	cfg     *config.AppConfig
}

// NewRootCmd builds the pdfmend command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "pdfmend",
		Short: "Recover and diagnose damaged PDF documents",
		Long: `pdfmend parses malformed PDF documents, repairs them through an escalating
chain of recovery strategies and reports on their health.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVar(&opts.isDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRecoverCmd(opts),
		newDiagnoseCmd(opts),
		newServeCmd(opts),
		newStatusCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) setup() error {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return fmt.Errorf("failed to load config: %w", err)
	}
	o.cfg = cfg

	// Setup logging
	slogLevel := slog.LevelInfo
	if o.isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return nil
}

// openArchive opens the configured archive for one-shot commands. The memory
// backend does not outlive the process, so it is treated as disabled.
func (o *options) openArchive(ctx context.Context) (*control.Archive, error) {
	cfg := *o.cfg
	if cfg.Archive.Backend == config.BackendMemory {
		cfg.Archive.Backend = config.BackendNone
	}
	return control.OpenArchive(ctx, &cfg)
}
