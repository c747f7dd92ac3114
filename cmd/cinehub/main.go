package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JustinTDCT/CineHub/internal/api"
	"github.com/JustinTDCT/CineHub/internal/app"
	"github.com/JustinTDCT/CineHub/internal/auth"
	"github.com/JustinTDCT/CineHub/internal/config"
	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/jobs"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
	"github.com/JustinTDCT/CineHub/internal/scheduler"
	"github.com/JustinTDCT/CineHub/internal/version"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.Debug)

	ver := version.Load("version.json")
	logger.Info("CineHub starting", "version", ver.Version, "commit", ver.Commit)

	if err := run(cfg, ver); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, ver version.Info) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	authService, err := auth.NewAuth(cfg.JWTSecret)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	rt.Health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	status := ingest.NewRedisStatus(rdb)

	queue := jobs.NewQueue(cfg.RedisAddr, cfg.WorkerConcurrency)

	srv := api.NewServer(api.Deps{
		Auth:        authService,
		Pipeline:    rt.Pipeline,
		Reconciler:  rt.Reconciler,
		Genres:      rt.Store,
		Watches:     rt.Store,
		Queue:       queue,
		Status:      status,
		StorageRoot: rt.StorageRoot(),
		IngestPages: cfg.IngestPages,
		Version:     ver,
		Health:      toCheckers(rt.Health),
	})

	orchestrator := rt.Orchestrator(ingest.MultiSink{status, srv.WSHub()})
	defaults := jobs.IngestPayload{Pages: cfg.IngestPages, StorageRoot: rt.StorageRoot()}
	jobs.RegisterHandlers(queue, orchestrator, srv.WSHub(), defaults)
	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer queue.Stop()

	sched, err := scheduler.New(cfg.IngestSchedule, func(kind models.MediaType) {
		if _, err := jobs.EnqueueIngest(queue, kind, defaults); err != nil {
			logger.Error("scheduled ingest enqueue failed", "kind", kind, "error", err)
		}
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if cfg.IngestOnBoot {
		enqueueBoot(queue, defaults)
	}

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// enqueueBoot seeds the genre vocabulary and schedules one ingestion per kind.
func enqueueBoot(q *jobs.Queue, defaults jobs.IngestPayload) {
	if _, err := jobs.EnqueueGenres(q); err != nil {
		logger.Error("boot genre seed enqueue failed", "error", err)
	}
	for _, kind := range []models.MediaType{models.MediaTypeShow, models.MediaTypeMovie} {
		if _, err := jobs.EnqueueIngest(q, kind, defaults); err != nil {
			logger.Error("boot ingest enqueue failed", "kind", kind, "error", err)
		}
	}
}

func toCheckers(in map[string]func(ctx context.Context) error) map[string]api.HealthChecker {
	out := make(map[string]api.HealthChecker, len(in))
	for name, fn := range in {
		out[name] = fn
	}
	return out
}
