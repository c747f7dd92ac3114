package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// SetWatch records how userID follows a media, replacing any earlier entry.
func (r *MediaRepository) SetWatch(ctx context.Context, mediaID, userID string, wt models.WatchType) error {
	if _, err := uuid.Parse(mediaID); err != nil {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, mediaID)
	}
	query := `
		INSERT INTO media_watchers (media_id, user_id, watch_type)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM media WHERE id = $1)
		ON CONFLICT (media_id, user_id) DO UPDATE SET watch_type = EXCLUDED.watch_type`
	res, err := r.db.ExecContext(ctx, query, mediaID, userID, int(wt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, mediaID)
	}
	return nil
}

// ClearWatch is a no-op when there is nothing to remove.
func (r *MediaRepository) ClearWatch(ctx context.Context, mediaID, userID string) error {
	if _, err := uuid.Parse(mediaID); err != nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM media_watchers WHERE media_id = $1 AND user_id = $2`, mediaID, userID)
	return err
}

func (r *MediaRepository) ListWatches(ctx context.Context, userID string) ([]models.MediaWatcher, error) {
	query := `
		SELECT w.media_id, w.user_id, w.watch_type
		FROM media_watchers w JOIN media m ON m.id = w.media_id
		WHERE w.user_id = $1
		ORDER BY m.title, w.media_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.MediaWatcher{}
	for rows.Next() {
		var (
			w  models.MediaWatcher
			wt int
		)
		if err := rows.Scan(&w.MediaID, &w.UserID, &wt); err != nil {
			return nil, err
		}
		w.WatchType = models.WatchType(wt)
		out = append(out, w)
	}
	return out, rows.Err()
}
