package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
	"github.com/JustinTDCT/CineHub/internal/signature"
)

// FileStore persists a stream at relPath below root, replacing any previous file.
type FileStore interface {
	Save(ctx context.Context, root, relPath string, r io.Reader) error
}

// Reconciler merges edit and import payloads into the catalog.
type Reconciler struct {
	store Store
	files FileStore
	log   *slog.Logger
}

func NewReconciler(store Store, files FileStore) *Reconciler {
	return &Reconciler{
		store: store,
		files: files,
		log:   logger.With("component", "reconciler"),
	}
}

// validatedPoster is an upload whose signature has been checked. header holds
// the bytes already consumed from the upload stream.
type validatedPoster struct {
	ext    string
	header []byte
	rest   io.Reader
}

// Reconcile locates or creates the media described by p and moves it to the
// payload's state in a single transaction. It returns the media id.
//
// A payload id that matches nothing is treated as a create, never as
// ErrNotFound. The poster file is written before the transaction commits, so
// a crash in between can leave an orphan file but never a row without a file.
func (r *Reconciler) Reconcile(ctx context.Context, p *models.EditPayload, requestingUserID, storageRoot string) (string, error) {
	keywords, err := ParseKeywords(p.Keywords)
	if err != nil {
		return "", err
	}

	var poster *validatedPoster
	if p.Poster != nil {
		ext, header, err := signature.Validate(p.Poster.FileName, p.Poster.Content)
		if err != nil {
			return "", fmt.Errorf("%w: poster: %w", ErrValidation, err)
		}
		poster = &validatedPoster{ext: ext, header: header, rest: p.Poster.Content}
	}

	var mediaID string
	err = r.store.WithTx(ctx, func(tx Tx) error {
		media, created, err := r.locate(ctx, tx, p)
		if err != nil {
			return err
		}
		if created && requestingUserID != "" {
			media.CreatorID = requestingUserID
		}

		mergeFields(media, p)
		if strings.TrimSpace(media.Title) == "" || strings.TrimSpace(media.Overview) == "" {
			return fmt.Errorf("%w: title and overview are required", ErrValidation)
		}

		if created {
			err = tx.InsertMedia(ctx, media)
		} else {
			err = tx.UpdateMedia(ctx, media)
		}
		if err != nil {
			return fmt.Errorf("persist media: %w", err)
		}

		if err := r.applyGenres(ctx, tx, media, ParseGenres(p.Genres)); err != nil {
			return err
		}
		if err := r.applyKeywords(ctx, tx, media, keywords); err != nil {
			return err
		}
		if poster != nil {
			if err := r.replacePoster(ctx, tx, media, poster, storageRoot); err != nil {
				return err
			}
		}

		mediaID = media.ID
		r.log.Debug("media reconciled", "media_id", media.ID, "created", created, "user_id", requestingUserID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return mediaID, nil
}

// locate finds the target media by id, then by external id, and otherwise
// builds a new one from the variant tag.
func (r *Reconciler) locate(ctx context.Context, tx Tx, p *models.EditPayload) (*models.Media, bool, error) {
	if p.ID != "" {
		m, err := tx.FindMediaByID(ctx, p.ID)
		if err != nil {
			return nil, false, fmt.Errorf("find media %s: %w", p.ID, err)
		}
		if m != nil {
			return m, false, nil
		}
	}

	mediaType, ok := models.ParseMediaType(p.MediaType)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrTypeResolution, p.MediaType)
	}

	if p.ID == "" && p.ExternalID != 0 {
		m, err := tx.FindMediaByExternalID(ctx, mediaType, p.ExternalID)
		if err != nil {
			return nil, false, fmt.Errorf("find media by external id %d: %w", p.ExternalID, err)
		}
		if m != nil {
			return m, false, nil
		}
	}

	m, err := models.NewMedia(string(mediaType))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTypeResolution, err)
	}
	return m, true, nil
}

func mergeFields(m *models.Media, p *models.EditPayload) {
	m.Title = coalesce(p.Title, m.Title)
	m.Overview = coalesce(p.Overview, m.Overview)
	m.Language = coalesce(p.Language, m.Language)
	m.TrailerURL = coalesce(p.TrailerURL, m.TrailerURL)
	if p.Runtime != nil {
		m.Runtime = *p.Runtime
	}
	if p.Budget != nil {
		m.Budget = *p.Budget
	}
	if p.ReleaseDate != nil {
		d := *p.ReleaseDate
		m.ReleaseDate = &d
	}
	if p.ExternalID != 0 {
		m.ExternalID = p.ExternalID
	}
	m.IsDetailFull = true
}

func coalesce(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (r *Reconciler) applyGenres(ctx context.Context, tx Tx, m *models.Media, target []string) error {
	d := DiffGenres(m.Genres, target)
	for _, g := range d.Remove {
		if err := tx.RemoveGenre(ctx, m.ID, g.ID); err != nil {
			return fmt.Errorf("remove genre %q: %w", g.Name, err)
		}
	}
	for _, name := range d.Add {
		g, err := tx.FindGenreByName(ctx, name)
		if err != nil {
			return fmt.Errorf("find genre %q: %w", name, err)
		}
		if g == nil {
			r.log.Debug("dropping unknown genre", "media_id", m.ID, "genre", name)
			continue
		}
		if err := tx.AddGenre(ctx, m.ID, g.ID); err != nil {
			return fmt.Errorf("add genre %q: %w", name, err)
		}
	}
	return nil
}

func (r *Reconciler) applyKeywords(ctx context.Context, tx Tx, m *models.Media, target []models.KeywordEntry) error {
	current := make([]int, 0, len(m.Keywords))
	for _, k := range m.Keywords {
		current = append(current, k.ID)
	}

	d := DiffKeywords(current, target)
	for _, id := range d.Remove {
		if err := tx.RemoveKeyword(ctx, m.ID, id); err != nil {
			return fmt.Errorf("remove keyword %d: %w", id, err)
		}
	}
	for _, id := range d.Add {
		if err := tx.AddKeyword(ctx, m.ID, id); err != nil {
			return fmt.Errorf("add keyword %d: %w", id, err)
		}
	}
	for _, name := range d.Create {
		kw, err := tx.InsertKeyword(ctx, name)
		if err != nil {
			return fmt.Errorf("create keyword %q: %w", name, err)
		}
		if err := tx.AddKeyword(ctx, m.ID, kw.ID); err != nil {
			return fmt.Errorf("add keyword %q: %w", name, err)
		}
	}
	return nil
}

func (r *Reconciler) replacePoster(ctx context.Context, tx Tx, m *models.Media, p *validatedPoster, root string) error {
	rel := signature.PosterPath(m.ID, p.ext)
	content := io.MultiReader(bytes.NewReader(p.header), p.rest)
	if err := r.files.Save(ctx, root, rel, content); err != nil {
		return fmt.Errorf("store poster: %w", err)
	}

	img := models.MediaImage{
		ID:        uuid.New().String(),
		MediaID:   m.ID,
		ImageType: models.ImageTypePoster,
		Path:      "/" + rel,
		Extension: p.ext,
		Title:     m.Title + " - Poster",
	}
	if err := tx.ReplacePoster(ctx, img); err != nil {
		return fmt.Errorf("replace poster: %w", err)
	}
	return nil
}
