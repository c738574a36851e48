package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mindstream/internal/app"
)

func newServeCmd() *cobra.Command {
	var (
		bindAddr    string
		personaPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if bindAddr != "" {
				cfg.BindAddr = bindAddr
			}
			if personaPath != "" {
				cfg.PersonaPath = personaPath
			}

			res, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					logger.Warn("cleanup failed", "err", err)
				}
			}()

			httpServer := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           res.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			res.Sessions.StartJanitor(runCtx, 5*time.Second)

			listenErr := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", cfg.BindAddr, "inference", res.Inference)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					listenErr <- err
				}
				close(listenErr)
			}()

			select {
			case err := <-listenErr:
				if err != nil {
					return err
				}
			case <-runCtx.Done():
				logger.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown failed", "err", err)
				_ = httpServer.Close()
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&bindAddr, "bind", "", "Listen address (overrides APP_BIND_ADDR)")
	cmd.Flags().StringVar(&personaPath, "persona", "", "Persona file to render into the prompt (overrides PERSONA_PATH)")
	return cmd
}
