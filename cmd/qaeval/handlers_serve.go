package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/haasonsaas/qaevaluator/internal/server"
)

// runServe loads configuration, starts the HTTP server and blocks until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	a, err := newApp(configPath, debug)
	if err != nil {
		return err
	}

	slog.Info("starting QA evaluator",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	srv := server.New(server.Config{
		Host:              a.cfg.Server.Host,
		Port:              a.cfg.Server.Port,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   a.cfg.Server.ShutdownTimeout,
		EmitSkipEvents:    a.cfg.Server.SkipEventsEnabled(),
		MaxUploadBytes:    a.cfg.Server.MaxUploadBytes,
	}, server.Options{
		Deps:     a.deps,
		Store:    a.store,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Logger:   a.logger,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = srv.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	a.close(shutdownCtx)

	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("QA evaluator stopped gracefully")
	return nil
}
