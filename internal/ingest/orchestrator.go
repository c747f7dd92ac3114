// Package ingest walks a paged external catalog and reconciles every record
// into the local store, one item at a time.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

var (
	// ErrCircuitOpen aborts a run whose items fail at too high a rate.
	ErrCircuitOpen = errors.New("ingest: failure rate too high, run aborted")
	// ErrSourceUnavailable aborts a run after repeated listing failures.
	ErrSourceUnavailable = errors.New("ingest: source listing failed repeatedly, run aborted")
)

type Source interface {
	ListIDs(ctx context.Context, kind models.MediaType, page int) ([]int, error)
	// FetchDetail returns (nil, nil) for records that should be skipped.
	FetchDetail(ctx context.Context, id int, kind models.MediaType) (*models.EditPayload, error)
	Genres(ctx context.Context, kind models.MediaType) ([]models.Genre, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, p *models.EditPayload, requestingUserID, storageRoot string) (string, error)
}

// CatalogStore is the part of the catalog the orchestrator touches outside
// reconciliation.
type CatalogStore interface {
	UpsertGenre(ctx context.Context, g models.Genre) (models.Genre, error)
	FindByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error)
}

type Options struct {
	// MaxFailureRatio and MinSamples configure the per-page breaker: once
	// MinSamples items were attempted on a page, a failed/attempted ratio at
	// or above MaxFailureRatio opens it.
	MaxFailureRatio float64
	MinSamples      int
	// MaxPageFailures is the number of consecutive listing failures tolerated.
	MaxPageFailures int
}

func DefaultOptions() Options {
	return Options{MaxFailureRatio: 0.75, MinSamples: 4, MaxPageFailures: 3}
}

type Orchestrator struct {
	source     Source
	reconciler Reconciler
	store      CatalogStore
	sink       ProgressSink
	opts       Options
	log        *slog.Logger
}

// New builds an orchestrator. store and sink may be nil; without a store
// keywords are not matched against earlier imports.
func New(source Source, reconciler Reconciler, store CatalogStore, sink ProgressSink, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxFailureRatio <= 0 {
		opts.MaxFailureRatio = def.MaxFailureRatio
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = def.MinSamples
	}
	if opts.MaxPageFailures <= 0 {
		opts.MaxPageFailures = def.MaxPageFailures
	}
	return &Orchestrator{
		source:     source,
		reconciler: reconciler,
		store:      store,
		sink:       sink,
		opts:       opts,
		log:        logger.With("component", "ingest"),
	}
}

func (o *Orchestrator) RunShows(ctx context.Context, pages int, storageRoot string) (*Report, error) {
	return o.Run(ctx, models.MediaTypeShow, pages, storageRoot)
}

func (o *Orchestrator) RunMovies(ctx context.Context, pages int, storageRoot string) (*Report, error) {
	return o.Run(ctx, models.MediaTypeMovie, pages, storageRoot)
}

// Run ingests pages 1..pages of kind. Item failures are recorded in the
// report and never stop the run; only cancellation, the failure breaker and
// repeated listing failures do. The report is returned in every case.
func (o *Orchestrator) Run(ctx context.Context, kind models.MediaType, pages int, storageRoot string) (*Report, error) {
	rep := &Report{RunID: uuid.New().String(), Kind: kind, PagesRequested: pages, StartedAt: time.Now()}
	log := o.log.With("run_id", rep.RunID, "kind", kind)
	log.Info("ingestion started", "pages", pages)

	err := o.run(ctx, rep, log, storageRoot)
	rep.FinishedAt = time.Now()

	switch {
	case err == nil:
		rep.State = StateCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		rep.State = StateCancelled
	default:
		rep.State = StateFailed
	}
	if err != nil {
		rep.Error = err.Error()
	}
	o.emit(ctx, rep, 0)

	log.Info("ingestion finished", "state", rep.State, "reconciled", rep.Reconciled,
		"skipped", rep.Skipped, "failed", rep.Failed, "duration", rep.FinishedAt.Sub(rep.StartedAt))
	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, rep *Report, log *slog.Logger, storageRoot string) error {
	consecutivePageFailures := 0

	for page := 1; page <= rep.PagesRequested; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := o.source.ListIDs(ctx, rep.Kind, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rep.PageFailures++
			consecutivePageFailures++
			log.Warn("listing page failed", "page", page, "error", err)
			if consecutivePageFailures >= o.opts.MaxPageFailures {
				return fmt.Errorf("%w: last error: %v", ErrSourceUnavailable, err)
			}
			continue
		}
		consecutivePageFailures = 0

		var attempted, failed int
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}

			// An item that started runs to completion even if ctx is cancelled.
			res := o.processItem(context.WithoutCancel(ctx), rep.Kind, id, page, storageRoot)
			rep.add(res)

			switch res.Status {
			case ItemReconciled:
				attempted++
				log.Debug("item reconciled", "page", page, "external_id", id, "media_id", res.MediaID)
			case ItemSkipped:
				log.Debug("item skipped", "page", page, "external_id", id)
			case ItemFailed:
				attempted++
				failed++
				log.Warn("item failed", "page", page, "external_id", id, "error", res.Err)
			}

			if o.breakerOpen(attempted, failed) {
				return fmt.Errorf("%w: page %d: %d of %d items failed", ErrCircuitOpen, page, failed, attempted)
			}
		}

		rep.PagesCompleted++
		o.emit(ctx, rep, page)
	}
	return nil
}

func (o *Orchestrator) breakerOpen(attempted, failed int) bool {
	if attempted < o.opts.MinSamples {
		return false
	}
	return float64(failed)/float64(attempted) >= o.opts.MaxFailureRatio
}

func (o *Orchestrator) processItem(ctx context.Context, kind models.MediaType, id, page int, storageRoot string) (res ItemResult) {
	res = ItemResult{ExternalID: id, Page: page}
	defer func() {
		if r := recover(); r != nil {
			res.Status = ItemFailed
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	payload, err := o.source.FetchDetail(ctx, id, kind)
	if err != nil {
		res.Status, res.Err = ItemFailed, fmt.Errorf("fetch detail: %w", err)
		return res
	}
	if payload == nil {
		res.Status = ItemSkipped
		return res
	}

	if err := o.resolveKeywords(ctx, kind, payload); err != nil {
		res.Status, res.Err = ItemFailed, fmt.Errorf("resolve keywords: %w", err)
		return res
	}

	mediaID, err := o.reconciler.Reconcile(ctx, payload, "", storageRoot)
	if err != nil {
		res.Status, res.Err = ItemFailed, fmt.Errorf("reconcile: %w", err)
		return res
	}
	res.Status, res.MediaID = ItemReconciled, mediaID
	return res
}

// resolveKeywords rewrites new keyword entries whose value the stored record
// already carries to that keyword's id. Re-importing an unchanged record then
// keeps its keyword rows instead of creating fresh ones.
func (o *Orchestrator) resolveKeywords(ctx context.Context, kind models.MediaType, p *models.EditPayload) error {
	if o.store == nil || p.Keywords == "" {
		return nil
	}
	entries, err := catalog.ParseKeywords(p.Keywords)
	if err != nil || len(entries) == 0 {
		// malformed lists are reported by the reconciler
		return nil
	}
	existing, err := o.store.FindByExternalID(ctx, kind, p.ExternalID)
	if err != nil {
		return err
	}
	if existing == nil || len(existing.Keywords) == 0 {
		return nil
	}

	// a value may be associated more than once; each entry claims one id
	byValue := make(map[string][]int, len(existing.Keywords))
	for _, k := range existing.Keywords {
		byValue[k.Name] = append(byValue[k.Name], k.ID)
	}
	for i, e := range entries {
		ids := byValue[e.Value]
		if e.ID != 0 || len(ids) == 0 {
			continue
		}
		entries[i].ID = ids[0]
		byValue[e.Value] = ids[1:]
	}

	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	p.Keywords = string(b)
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, rep *Report, page int) {
	if o.sink == nil {
		return
	}
	o.sink.Report(context.WithoutCancel(ctx), rep.progress(page))
}

// SeedGenres upserts the source's genre vocabulary for kind. Compound source
// names ("Sci-Fi & Fantasy") are split the same way edit payloads are, so
// every name a payload can reference exists.
func (o *Orchestrator) SeedGenres(ctx context.Context, kind models.MediaType) (int, error) {
	genres, err := o.source.Genres(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("list genres: %w", err)
	}

	seeded := 0
	for _, g := range genres {
		parts := catalog.ParseGenres(g.Name)
		for _, name := range parts {
			apiID := 0
			if len(parts) == 1 {
				apiID = g.APIID
			}
			if _, err := o.store.UpsertGenre(ctx, models.Genre{Name: name, APIID: apiID}); err != nil {
				return seeded, fmt.Errorf("upsert genre %q: %w", name, err)
			}
			seeded++
		}
	}
	o.log.Info("genres seeded", "kind", kind, "count", seeded)
	return seeded, nil
}
