// Package app assembles the catalog runtime from configuration. Both the
// server and the one-shot ingest command start from here.
package app

import (
	"context"
	"fmt"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/config"
	"github.com/JustinTDCT/CineHub/internal/db"
	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/memstore"
	"github.com/JustinTDCT/CineHub/internal/metadata"
	"github.com/JustinTDCT/CineHub/internal/notifications"
	"github.com/JustinTDCT/CineHub/internal/repository"
	"github.com/JustinTDCT/CineHub/internal/storage"
)

type Runtime struct {
	Store      catalog.Store
	Files      catalog.FileStore
	Source     *metadata.TMDBSource
	Reconciler *catalog.Reconciler
	Pipeline   *catalog.QueryPipeline
	// Notifier is nil unless INGEST_WEBHOOK_URL is set.
	Notifier *notifications.WebhookSender
	// Health holds one check per backing service.
	Health map[string]func(ctx context.Context) error

	cfg     *config.Config
	closers []func() error
}

// Open connects the catalog store (running migrations for postgres), the
// poster file store and the metadata source.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{cfg: cfg, Health: map[string]func(ctx context.Context) error{}}

	switch cfg.StoreDriver {
	case "postgres":
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, database.Close)
		if err := db.Migrate(ctx, database.DB); err != nil {
			rt.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		rt.Store = repository.NewMediaRepository(database.DB)
		rt.Health["postgres"] = database.PingContext
	case "memory":
		logger.Warn("using in-memory catalog store; data is lost on restart")
		rt.Store = memstore.New()
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want postgres or memory)", cfg.StoreDriver)
	}

	switch cfg.FileStore {
	case "local":
		rt.Files = storage.NewLocalStore()
	case "s3":
		if !cfg.S3Enabled() {
			rt.Close()
			return nil, fmt.Errorf("FILE_STORE=s3 requires S3_BUCKET")
		}
		s3store, err := storage.NewS3Store(ctx, storage.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Files = s3store
	default:
		rt.Close()
		return nil, fmt.Errorf("unknown FILE_STORE %q (want local or s3)", cfg.FileStore)
	}

	if cfg.TMDBAPIKey == "" {
		logger.Warn("TMDB_API_KEY is not set; ingestion runs will fail")
	}
	if cfg.IngestWebhookURL != "" {
		notifier, err := notifications.NewWebhookSender(cfg.IngestWebhookURL, cfg.IngestWebhookChannel)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Notifier = notifier
	}

	rt.Source = metadata.NewTMDBSource(cfg.TMDBAPIKey, cfg.TMDBBaseURL, cfg.TMDBRatePerSec)
	rt.Reconciler = catalog.NewReconciler(rt.Store, rt.Files)
	rt.Pipeline = catalog.NewQueryPipeline(rt.Store)
	return rt, nil
}

// Orchestrator builds an ingestion orchestrator reporting to sink and, when
// configured, the completion webhook.
func (rt *Runtime) Orchestrator(sink ingest.ProgressSink) *ingest.Orchestrator {
	if rt.Notifier != nil {
		sink = ingest.MultiSink{sink, rt.Notifier}
	}
	return ingest.New(rt.Source, rt.Reconciler, rt.Store, sink, ingest.Options{
		MaxFailureRatio: rt.cfg.IngestMaxFailureRatio,
		MinSamples:      rt.cfg.IngestMinSamples,
	})
}

// StorageRoot is the directory (or key prefix for s3) posters are written under.
func (rt *Runtime) StorageRoot() string {
	return rt.cfg.DataDir
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}
