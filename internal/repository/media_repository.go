package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// MediaRepository is the PostgreSQL catalog.Store.
type MediaRepository struct {
	db  *sql.DB
	log *slog.Logger
}

var _ catalog.Store = (*MediaRepository)(nil)

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db, log: logger.With("component", "repository")}
}

const mediaColumns = `id, media_type, title, overview, language, runtime, budget,
	release_date, trailer_url, is_detail_full, external_id, creator_id, created_at, updated_at`

func scanMedia(row interface{ Scan(dest ...interface{}) error }) (*models.Media, error) {
	m := &models.Media{}
	var (
		releaseDate sql.NullTime
		creatorID   sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.MediaType, &m.Title, &m.Overview, &m.Language, &m.Runtime, &m.Budget,
		&releaseDate, &m.TrailerURL, &m.IsDetailFull, &m.ExternalID, &creatorID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if releaseDate.Valid {
		d := releaseDate.Time
		m.ReleaseDate = &d
	}
	m.CreatorID = creatorID.String
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// WithTx runs fn in a database transaction, committing when fn returns nil.
func (r *MediaRepository) WithTx(ctx context.Context, fn func(tx catalog.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Warn("rollback failed", "error", rbErr)
		}
	}()

	if err := fn(&mediaTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *MediaRepository) Query(ctx context.Context) catalog.MediaQueryBuilder {
	return &mediaQuery{db: r.db, sort: models.SortTitle}
}

func (r *MediaRepository) GetDetails(ctx context.Context, id string) (*models.Media, error) {
	return loadMedia(ctx, r.db, id)
}

func (r *MediaRepository) FindByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error) {
	return findMedia(ctx, r.db, findByExternalIDQuery, string(mediaType), externalID)
}

func (r *MediaRepository) GetBatch(ctx context.Context, ids []string) ([]models.MediaSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM media m WHERE m.id::text = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]models.MediaSummary, len(ids))
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.MediaSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MediaRepository) DetailStatus(ctx context.Context, id string) (string, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", false, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	var (
		title string
		full  bool
	)
	err := r.db.QueryRowContext(ctx, `SELECT title, is_detail_full FROM media WHERE id = $1`, id).Scan(&title, &full)
	if err == sql.ErrNoRows {
		return "", false, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return title, full, err
}

// ──────── Loading ────────

// loadMedia reads a media row with its genres, keywords and images. It
// returns (nil, nil) when the id is unknown or not a UUID.
func loadMedia(ctx context.Context, q queryer, id string) (*models.Media, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	m, err := scanMedia(q.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, loadAssociations(ctx, q, m)
}

func findMedia(ctx context.Context, q queryer, query string, args ...interface{}) (*models.Media, error) {
	m, err := scanMedia(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, loadAssociations(ctx, q, m)
}

func loadAssociations(ctx context.Context, q queryer, m *models.Media) error {
	var err error
	if m.Genres, err = listGenresForMedia(ctx, q, m.ID); err != nil {
		return fmt.Errorf("load genres: %w", err)
	}
	if m.Keywords, err = listKeywordsForMedia(ctx, q, m.ID); err != nil {
		return fmt.Errorf("load keywords: %w", err)
	}
	if m.Images, err = listImages(ctx, q, m.ID); err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	return nil
}

func listImages(ctx context.Context, q queryer, mediaID string) ([]models.MediaImage, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, media_id, image_type, path, extension, title, description
		FROM media_images WHERE media_id = $1 ORDER BY image_type, id`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.MediaImage{}
	for rows.Next() {
		var img models.MediaImage
		if err := rows.Scan(&img.ID, &img.MediaID, &img.ImageType, &img.Path, &img.Extension, &img.Title, &img.Description); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ──────── Transaction ────────

const findByExternalIDQuery = `SELECT ` + mediaColumns + ` FROM media
	WHERE media_type = $1 AND external_id = $2
	ORDER BY created_at ASC, id ASC LIMIT 1`

type mediaTx struct {
	tx *sql.Tx
}

func (t *mediaTx) FindMediaByID(ctx context.Context, id string) (*models.Media, error) {
	return loadMedia(ctx, t.tx, id)
}

func (t *mediaTx) FindMediaByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error) {
	return findMedia(ctx, t.tx, findByExternalIDQuery, string(mediaType), externalID)
}

func (t *mediaTx) InsertMedia(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO media (
			id, media_type, title, overview, language, runtime, budget,
			release_date, trailer_url, is_detail_full, external_id, creator_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`
	return t.tx.QueryRowContext(ctx, query,
		m.ID, string(m.MediaType), m.Title, m.Overview, m.Language, m.Runtime, m.Budget,
		m.ReleaseDate, m.TrailerURL, m.IsDetailFull, m.ExternalID, nullString(m.CreatorID),
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// UpdateMedia writes every mutable column. media_type and creator_id are
// fixed at creation.
func (t *mediaTx) UpdateMedia(ctx context.Context, m *models.Media) error {
	query := `
		UPDATE media SET
			title = $2, overview = $3, language = $4, runtime = $5, budget = $6,
			release_date = $7, trailer_url = $8, is_detail_full = $9, external_id = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := t.tx.QueryRowContext(ctx, query,
		m.ID, m.Title, m.Overview, m.Language, m.Runtime, m.Budget,
		m.ReleaseDate, m.TrailerURL, m.IsDetailFull, m.ExternalID,
	).Scan(&m.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, m.ID)
	}
	return err
}

func (t *mediaTx) FindGenreByName(ctx context.Context, name string) (*models.Genre, error) {
	return findGenreByName(ctx, t.tx, name)
}

func (t *mediaTx) InsertKeyword(ctx context.Context, name string) (models.Keyword, error) {
	return insertKeyword(ctx, t.tx, name)
}

func (t *mediaTx) AddGenre(ctx context.Context, mediaID string, genreID int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO media_genres (media_id, genre_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, mediaID, genreID)
	return err
}

func (t *mediaTx) RemoveGenre(ctx context.Context, mediaID string, genreID int) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM media_genres WHERE media_id = $1 AND genre_id = $2`, mediaID, genreID)
	return err
}

func (t *mediaTx) AddKeyword(ctx context.Context, mediaID string, keywordID int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO media_keywords (media_id, keyword_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, mediaID, keywordID)
	return err
}

func (t *mediaTx) RemoveKeyword(ctx context.Context, mediaID string, keywordID int) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM media_keywords WHERE media_id = $1 AND keyword_id = $2`, mediaID, keywordID)
	return err
}

func (t *mediaTx) ReplacePoster(ctx context.Context, img models.MediaImage) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM media_images WHERE media_id = $1 AND image_type = $2`, img.MediaID, int(models.ImageTypePoster))
	if err != nil {
		return fmt.Errorf("delete old poster: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO media_images (id, media_id, image_type, path, extension, title, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.MediaID, int(img.ImageType), img.Path, img.Extension, img.Title, img.Description)
	return err
}
