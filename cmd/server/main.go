package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yourorg/csv-ingest/internal/advisory"
	"github.com/yourorg/csv-ingest/internal/blobstore/localfs"
	"github.com/yourorg/csv-ingest/internal/config"
	"github.com/yourorg/csv-ingest/internal/httpapi"
	"github.com/yourorg/csv-ingest/internal/orchestrator"
	"github.com/yourorg/csv-ingest/internal/queue"
	"github.com/yourorg/csv-ingest/internal/queue/inmemory"
	"github.com/yourorg/csv-ingest/internal/queue/natsqueue"
	"github.com/yourorg/csv-ingest/internal/relstore"
	"github.com/yourorg/csv-ingest/internal/relstore/postgres"
	"github.com/yourorg/csv-ingest/internal/relstore/sqlite"
	"github.com/yourorg/csv-ingest/internal/sheetsource"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadConfig()
	if err := config.ValidateConfig(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting server", "host", cfg.Host, "port", cfg.Port, "queue_backend", cfg.QueueBackend, "relational_backend", cfg.RelationalBackend, "ai_enabled", cfg.AIEnabled)

	ctx := context.Background()

	blobs, err := localfs.New(cfg.BlobStorePath)
	if err != nil {
		slog.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open relational store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	q, closeQueue, err := buildQueue(cfg)
	if err != nil {
		slog.Error("failed to build queue", "error", err)
		os.Exit(1)
	}
	defer closeQueue()

	var adv orchestrator.Advisor
	if cfg.AIEnabled {
		adv = advisory.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.AIRequestTimeout)
	}

	orch := orchestrator.New(blobs, store, q, cfg, adv)
	if err := orch.RegisterWorkers(); err != nil {
		slog.Error("failed to register stage workers", "error", err)
		os.Exit(1)
	}

	var sheets *sheetsource.Fetcher
	if cfg.GoogleCredentialsFile != "" {
		sheets, err = sheetsource.New(ctx, cfg.GoogleCredentialsFile, cfg)
		if err != nil {
			slog.Warn("google sheets ingestion disabled: failed to build fetcher", "error", err)
		}
	}

	router := httpapi.SetupRouter(cfg, orch, store, sheets)

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		slog.Info("http server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server shutdown complete")
}

// buildStore selects the relational store backend per
// cfg.RelationalBackend, already validated to be "sqlite" or "postgres"
// by config.ValidateConfig.
func buildStore(ctx context.Context, cfg *config.Config) (relstore.Store, func(), error) {
	switch cfg.RelationalBackend {
	case "postgres":
		s, err := postgres.New(ctx, cfg.RelationalDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := sqlite.New(ctx, cfg.RelationalDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	}
}

// buildQueue selects the queue backend per cfg.QueueBackend, already
// validated to be "inmemory" or "nats" by config.ValidateConfig.
func buildQueue(cfg *config.Config) (queue.Queue, func(), error) {
	switch cfg.QueueBackend {
	case "nats":
		q, err := natsqueue.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		return q, func() { _ = q.Close() }, nil
	default:
		q := inmemory.New()
		return q, func() { _ = q.Close() }, nil
	}
}
