package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/viant/agentpay"
	"github.com/viant/agentpay/internal/logging"
	"github.com/viant/agentpay/server"
	"github.com/viant/agentpay/tracing"
)

const (
	serviceName    = "agentpay"
	serviceVersion = "0.1.0"
)

func main() {
	configURL := flag.String("config", os.Getenv("AGENTPAY_CONFIG"), "config YAML location (file path or afs URL)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}
	if err := run(*configURL); err != nil {
		slog.Error("agentpay stopped", "error", err)
		os.Exit(1)
	}
}

func run(configURL string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := agentpay.LoadConfig(ctx, configURL)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)
	if cfg.Tracing.Enabled {
		if err = tracing.Init(serviceName, serviceVersion, cfg.Tracing.OutputFile); err != nil {
			return err
		}
	}

	srv, err := agentpay.New(ctx, cfg, agentpay.WithLogger(logger))
	if err != nil {
		return err
	}
	httpServer := server.New(srv, cfg.HTTP, logger)

	errs := make(chan error, 1)
	go func() { errs <- httpServer.ListenAndServe() }()

	select {
	case err = <-errs:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Voice.WaitWindow+10*time.Second)
	defer cancel()
	return errors.Join(err, httpServer.Shutdown(shutdownCtx), srv.Shutdown(shutdownCtx), tracing.Shutdown(shutdownCtx))
}
