package repository

import (
	"context"
	"database/sql"

	"github.com/JustinTDCT/CineHub/internal/models"
)

// Genres and keywords are the catalog's tag vocabularies. Genre names are
// unique; keyword names are not.

func findGenreByName(ctx context.Context, q queryer, name string) (*models.Genre, error) {
	g := &models.Genre{}
	err := q.QueryRowContext(ctx, `SELECT id, name, api_id FROM genres WHERE name = $1`, name).
		Scan(&g.ID, &g.Name, &g.APIID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func insertKeyword(ctx context.Context, q queryer, name string) (models.Keyword, error) {
	k := models.Keyword{Name: name}
	err := q.QueryRowContext(ctx, `INSERT INTO keywords (name) VALUES ($1) RETURNING id`, name).Scan(&k.ID)
	return k, err
}

func listGenresForMedia(ctx context.Context, q queryer, mediaID string) ([]models.Genre, error) {
	rows, err := q.QueryContext(ctx, `SELECT g.id, g.name, g.api_id
		FROM genres g JOIN media_genres mg ON mg.genre_id = g.id
		WHERE mg.media_id = $1 ORDER BY g.id`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	genres := []models.Genre{}
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.APIID); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func listKeywordsForMedia(ctx context.Context, q queryer, mediaID string) ([]models.Keyword, error) {
	rows, err := q.QueryContext(ctx, `SELECT k.id, k.name
		FROM keywords k JOIN media_keywords mk ON mk.keyword_id = k.id
		WHERE mk.media_id = $1 ORDER BY k.id`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keywords := []models.Keyword{}
	for rows.Next() {
		var k models.Keyword
		if err := rows.Scan(&k.ID, &k.Name); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// UpsertGenre inserts a genre by name or refreshes its api id. A zero api id
// never overwrites a known one.
func (r *MediaRepository) UpsertGenre(ctx context.Context, g models.Genre) (models.Genre, error) {
	query := `INSERT INTO genres (name, api_id) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
			SET api_id = CASE WHEN EXCLUDED.api_id = 0 THEN genres.api_id ELSE EXCLUDED.api_id END
		RETURNING id, api_id`
	err := r.db.QueryRowContext(ctx, query, g.Name, g.APIID).Scan(&g.ID, &g.APIID)
	return g, err
}

// ListGenres returns the genre vocabulary ordered by name.
func (r *MediaRepository) ListGenres(ctx context.Context) ([]models.Genre, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, api_id FROM genres ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	genres := []models.Genre{}
	for rows.Next() {
		var g models.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.APIID); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}
