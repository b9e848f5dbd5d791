package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/api"
	"github.com/JakeFAU/harvester/internal/app"
	"github.com/JakeFAU/harvester/internal/config"
	"github.com/JakeFAU/harvester/internal/logging"
)

// newServeCmd creates the 'serve' subcommand running the HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the harvester HTTP service",
		Long: `Runs the harvester as a long-lived HTTP service. URLs are submitted via
POST /v1/session/urls, progress is observable via GET /v1/session, and a
stop request drains in-flight work before the merged export is written.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()
	logger := a.Logger()

	rt, err := buildRuntime(cfg, a)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	apiServer := api.NewServer(rt, a.Registry(), logging.Named(logger, "api"), api.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error("runtime shutdown error", zap.Error(err))
	}
	return nil
}
