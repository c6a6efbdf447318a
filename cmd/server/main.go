package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanshare/lanshare/internal/artifact"
	"github.com/lanshare/lanshare/internal/blob"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/internal/storage/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sink, err := blob.NewDiskSink(cfg.UploadDir)
	if err != nil {
		return err
	}

	deriver, err := artifact.NewDeriver(cfg.IdentifierStrategy)
	if err != nil {
		return err
	}

	hub := server.NewHub(logger.With("component", "hub"))
	go hub.Run()

	coordinator := artifact.NewCoordinator(store, hub, logger.With("component", "ingest"))
	srv := server.NewServer(cfg, hub, coordinator, sink, deriver, logger)
	httpServer := server.CreateServer(cfg.Addr, srv.Routes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		errCh <- server.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = hub.Shutdown(cfg.ShutdownTimeout)
			return err
		}
	}

	_ = server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	return hub.Shutdown(cfg.ShutdownTimeout)
}
