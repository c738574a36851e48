package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mindstream/internal/app"
	"github.com/ent0n29/mindstream/internal/config"
)

// NewRootCmd assembles the mindstream command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mindstream",
		Short: "Streaming chat service with reasoning separation and long-term memory",
		Long: `mindstream serves a websocket chat that splits model reasoning from the reply,
keeps a short-term window per session and a searchable long-term history.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newHistoryCmd(), newProfileCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadRuntime reads the environment configuration and builds the logger.
// Logs go to stderr so command output on stdout stays clean.
func loadRuntime(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
