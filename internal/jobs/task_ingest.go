package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// ──────── Ingest Handler ────────

type IngestHandler struct {
	kind     models.MediaType
	runner   Runner
	notifier EventNotifier
	defaults IngestPayload
}

func NewIngestHandler(kind models.MediaType, runner Runner, notifier EventNotifier, defaults IngestPayload) *IngestHandler {
	return &IngestHandler{kind: kind, runner: runner, notifier: notifier, defaults: defaults}
}

func (h *IngestHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal: %w: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Pages <= 0 {
		payload.Pages = h.defaults.Pages
	}
	if payload.StorageRoot == "" {
		payload.StorageRoot = h.defaults.StorageRoot
	}

	taskID := t.Type()
	desc := fmt.Sprintf("Ingest %s: %d pages", h.kind, payload.Pages)
	h.broadcast(taskID, t.Type(), "running", 0, desc)

	rep, err := h.runner.Run(ctx, h.kind, payload.Pages, payload.StorageRoot)
	if err != nil {
		summary := desc
		if rep != nil {
			summary = fmt.Sprintf("%s (%d reconciled, %d failed)", desc, rep.Reconciled, rep.Failed)
		}
		h.broadcast(taskID, t.Type(), "failed", 100, summary+": "+err.Error())

		// A tripped breaker or a dead source will not recover on an immediate retry.
		if errors.Is(err, ingest.ErrCircuitOpen) || errors.Is(err, ingest.ErrSourceUnavailable) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("ingest task complete", "kind", h.kind, "reconciled", rep.Reconciled,
		"skipped", rep.Skipped, "failed", rep.Failed)
	h.broadcast(taskID, t.Type(), "complete", 100,
		fmt.Sprintf("%s (%d reconciled, %d skipped, %d failed)", desc, rep.Reconciled, rep.Skipped, rep.Failed))
	return nil
}

func (h *IngestHandler) broadcast(taskID, taskType, status string, progress int, desc string) {
	broadcastTask(h.notifier, taskID, taskType, status, progress, desc)
}

// ──────── Genres Handler ────────

type GenresHandler struct {
	runner   Runner
	notifier EventNotifier
}

func NewGenresHandler(runner Runner, notifier EventNotifier) *GenresHandler {
	return &GenresHandler{runner: runner, notifier: notifier}
}

func (h *GenresHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload GenresPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal: %w: %w", err, asynq.SkipRetry)
		}
	}
	kinds := payload.Kinds
	if len(kinds) == 0 {
		kinds = []models.MediaType{models.MediaTypeMovie, models.MediaTypeShow}
	}

	broadcastTask(h.notifier, TaskIngestGenres, TaskIngestGenres, "running", 0, "Seeding genres")
	total := 0
	for i, kind := range kinds {
		n, err := h.runner.SeedGenres(ctx, kind)
		if err != nil {
			broadcastTask(h.notifier, TaskIngestGenres, TaskIngestGenres, "failed", 100, "Seeding genres: "+err.Error())
			return err
		}
		total += n
		broadcastTask(h.notifier, TaskIngestGenres, TaskIngestGenres, "running", (i+1)*100/len(kinds), "Seeding genres")
	}
	broadcastTask(h.notifier, TaskIngestGenres, TaskIngestGenres, "complete", 100, fmt.Sprintf("Seeded %d genres", total))
	return nil
}

func broadcastTask(n EventNotifier, taskID, taskType, status string, progress int, desc string) {
	if n == nil {
		return
	}
	n.Broadcast("task:update", map[string]interface{}{
		"task_id": taskID, "task_type": taskType,
		"status": status, "progress": progress, "description": desc,
	})
}
