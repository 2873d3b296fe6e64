package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/libraryops/circulation-go/circulation"
	"github.com/libraryops/circulation-go/circulation/minioengine"
	"github.com/libraryops/circulation-go/circulation/oteladapters"
	"github.com/libraryops/circulation-go/circulation/postgresengine"
	"github.com/libraryops/circulation-go/internal/config"
	"github.com/libraryops/circulation-go/internal/httpapi"
)

const shutdownGracePeriod = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the circulation HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := oteladapters.NewSlogLogger(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.FromEnv()

	pool, poolErr := cfg.Postgres.PGXPool(ctx)
	if poolErr != nil {
		return fmt.Errorf("connect to postgres: %w", poolErr)
	}
	defer pool.Close()

	metrics := oteladapters.NewMetricsCollector(otel.Meter("circulation-store"))

	store, storeErr := postgresengine.NewStoreFromPGXPool(
		pool,
		postgresengine.WithLogger(logger),
		postgresengine.WithMetrics(metrics),
		postgresengine.WithBcryptCost(cfg.Postgres.BcryptCost))
	if storeErr != nil {
		return fmt.Errorf("build store: %w", storeErr)
	}

	minioClient, clientErr := cfg.Minio.Client()
	if clientErr != nil {
		return fmt.Errorf("connect to object storage: %w", clientErr)
	}

	blobs, blobsErr := minioengine.NewStore(minioClient, cfg.Minio.Bucket, minioengine.WithLogger(logger))
	if blobsErr != nil {
		return fmt.Errorf("build attachment store: %w", blobsErr)
	}

	coordinator := circulation.NewCoordinator(
		store, store, blobs, store, store,
		circulation.WithLogger(logger))

	handler := httpapi.NewHandler(
		coordinator, store, store,
		httpapi.WithLogger(logger),
		httpapi.WithCORSOrigins(cfg.HTTP.AllowedOrigins))

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrChan := make(chan error, 1)

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.ListenAddr)
		serveErrChan <- server.ListenAndServe()
	}()

	select {
	case serveErr := <-serveErrChan:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", serveErr)
		}

		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}

	return nil
}
