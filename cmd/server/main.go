package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mitrecx/my-bill-2/internal/config"
	"github.com/mitrecx/my-bill-2/internal/core"
	_ "github.com/mitrecx/my-bill-2/internal/core/providers" // register parsers
	"github.com/mitrecx/my-bill-2/internal/ingest"
	"github.com/mitrecx/my-bill-2/internal/logging"
	"github.com/mitrecx/my-bill-2/internal/store"
	"github.com/mitrecx/my-bill-2/internal/web"
)

func main() {
	// Overload lets .env win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), store.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("connected to database", "driver", cfg.Database.Driver)

	for _, def := range core.All() {
		slog.Debug("source registered", "source", def.Provider, "label", def.Label, "extensions", def.Extensions)
	}

	svc := ingest.NewService(st, ingest.Options{
		MaxFileSize:   cfg.Upload.MaxFileSize,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		Tolerance:     cfg.Import.DedupTolerance,
		Parse: core.ParseOptions{
			Location:        cfg.Import.Location(),
			DefaultCurrency: cfg.Import.DefaultCurrency,
		},
	})
	limiter := ingest.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	server := web.NewServer(svc, limiter, cfg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...", "active_imports", limiter.ActiveCount())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not complete cleanly", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
