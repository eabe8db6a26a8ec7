package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/app"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/config"
	"github.com/sreeharsha06/Enhanced-Authentication-API/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auth-api",
		Short:         "Authentication and profile API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  runServe,
	})
	root.AddCommand(newMigrateCmd())

	return root
}

// loadConfig reads the environment and configures the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		cmd.Context(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Run()
	}()

	logger.Info("auth-api started", map[string]any{
		"port": cfg.AppPort,
	})

	return awaitShutdown(ctx, application, serveErr)
}

type server interface {
	Shutdown(ctx context.Context) error
}

// awaitShutdown waits for a signal or a server failure. Either way the
// server is shut down so its database and Redis connections are released.
func awaitShutdown(ctx context.Context, srv server, serveErr <-chan error) error {
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case runErr = <-serveErr:
		if runErr != nil {
			logger.Error("http server failed", map[string]any{
				"error": runErr.Error(),
			})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful shutdown: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("auth-api stopped cleanly", nil)
	return nil
}
