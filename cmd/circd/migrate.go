package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/libraryops/circulation-go/circulation/minioengine"
	"github.com/libraryops/circulation-go/circulation/oteladapters"
	"github.com/libraryops/circulation-go/circulation/postgresengine"
	"github.com/libraryops/circulation-go/internal/config"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and, if configured, the attachment bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context())
		},
	}
}

func migrate(ctx context.Context) error {
	logger := oteladapters.NewSlogLogger(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.FromEnv()

	pool, poolErr := cfg.Postgres.PGXPool(ctx)
	if poolErr != nil {
		return fmt.Errorf("connect to postgres: %w", poolErr)
	}
	defer pool.Close()

	store, storeErr := postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLogger(logger))
	if storeErr != nil {
		return fmt.Errorf("build store: %w", storeErr)
	}

	if migrateErr := store.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("migrate schema: %w", migrateErr)
	}

	logger.Info("database schema is up to date")

	if !cfg.Minio.AutoCreateBucket {
		return nil
	}

	minioClient, clientErr := cfg.Minio.Client()
	if clientErr != nil {
		return fmt.Errorf("connect to object storage: %w", clientErr)
	}

	blobs, blobsErr := minioengine.NewStore(minioClient, cfg.Minio.Bucket, minioengine.WithLogger(logger))
	if blobsErr != nil {
		return fmt.Errorf("build attachment store: %w", blobsErr)
	}

	if bucketErr := blobs.EnsureBucket(ctx); bucketErr != nil {
		return fmt.Errorf("ensure bucket: %w", bucketErr)
	}

	logger.Info("attachment bucket is ready", "bucket", cfg.Minio.Bucket)

	return nil
}
