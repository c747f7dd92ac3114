package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// ──────── Payloads ────────

type IngestPayload struct {
	Pages       int    `json:"pages"`
	StorageRoot string `json:"storage_root"`
}

type GenresPayload struct {
	Kinds []models.MediaType `json:"kinds,omitempty"`
}

type EventNotifier interface {
	Broadcast(event string, data interface{})
}

// Runner is the part of the ingestion orchestrator the handlers drive.
type Runner interface {
	Run(ctx context.Context, kind models.MediaType, pages int, storageRoot string) (*ingest.Report, error)
	SeedGenres(ctx context.Context, kind models.MediaType) (int, error)
}

// Enqueuer is satisfied by *Queue.
type Enqueuer interface {
	EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error)
}

// TaskTypeFor maps a media kind to its ingestion task type.
func TaskTypeFor(kind models.MediaType) (string, error) {
	switch kind {
	case models.MediaTypeShow:
		return TaskIngestShows, nil
	case models.MediaTypeMovie:
		return TaskIngestMovies, nil
	}
	return "", fmt.Errorf("no ingestion task for media type %q", kind)
}

// EnqueueIngest schedules an ingestion run for kind. Runs are unique per
// kind: a second request while one is pending or active is a no-op.
func EnqueueIngest(q Enqueuer, kind models.MediaType, payload IngestPayload) (string, error) {
	taskType, err := TaskTypeFor(kind)
	if err != nil {
		return "", err
	}
	return q.EnqueueUnique(taskType, payload, taskType, asynq.Queue("low"), asynq.MaxRetry(1))
}

func EnqueueGenres(q Enqueuer) (string, error) {
	return q.EnqueueUnique(TaskIngestGenres, GenresPayload{}, TaskIngestGenres, asynq.Queue("default"))
}

// ──────── Register all handlers ────────

type handlerRegistry interface {
	RegisterHandler(taskType string, handler asynq.Handler)
}

func RegisterHandlers(q handlerRegistry, runner Runner, notifier EventNotifier, defaults IngestPayload) {
	q.RegisterHandler(TaskIngestShows, NewIngestHandler(models.MediaTypeShow, runner, notifier, defaults))
	q.RegisterHandler(TaskIngestMovies, NewIngestHandler(models.MediaTypeMovie, runner, notifier, defaults))
	q.RegisterHandler(TaskIngestGenres, NewGenresHandler(runner, notifier))
}
