package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/nimbusworks/artforge/internal/api"
	"github.com/nimbusworks/artforge/internal/config"
	"github.com/nimbusworks/artforge/internal/database"
	"github.com/nimbusworks/artforge/internal/stability"
	"github.com/nimbusworks/artforge/internal/storage"
	"github.com/nimbusworks/artforge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The account tables live next to the artifact store; bootstrap them when
	// a DSN is configured so SDK consumers find the schema in place.
	if cfg.MySQLDSN != "" {
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
	}

	store, err := storage.NewStore(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("artifact store: %v", err)
	}

	generator := stability.NewClient(cfg, logr)

	server := api.NewServer(cfg, logr, generator, store)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
