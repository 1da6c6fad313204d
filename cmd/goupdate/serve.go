package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goupdate/internal/app"
	"goupdate/internal/version"
)

// shutdownTimeout bounds in-flight requests after a termination signal.
const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the update server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
		SilenceUsage: true,
	}
}

func runServe(cmd *cobra.Command) error {
	result, err := loadConfig(cmd, os.Stdout)
	if err != nil {
		return err
	}

	slog.Info("starting goupdate",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, app.Config{AppConfig: result})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start(":" + result.Config.Server.Port)
	}()

	var startErr error
	select {
	case startErr = <-errCh:
		if startErr != nil {
			slog.Error("server failed", "error", startErr)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(startErr, application.Shutdown(shutdownCtx))
}
