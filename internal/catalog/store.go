package catalog

import (
	"context"
	"errors"

	"github.com/JustinTDCT/CineHub/internal/models"
)

var (
	ErrTypeResolution = errors.New("unknown media type")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("media not found")
)

// Store is the persistence contract the catalog needs. Writes happen only
// inside WithTx: the transaction commits when fn returns nil and rolls back
// otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Query(ctx context.Context) MediaQueryBuilder

	// GetDetails returns (nil, nil) for an unknown id.
	GetDetails(ctx context.Context, id string) (*models.Media, error)
	// FindByExternalID returns the oldest media of that type imported from
	// externalID with its associations, or (nil, nil).
	FindByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error)
	GetBatch(ctx context.Context, ids []string) ([]models.MediaSummary, error)
	// DetailStatus returns the title and completeness flag of a media, or
	// ErrNotFound.
	DetailStatus(ctx context.Context, id string) (title string, full bool, err error)
	UpsertGenre(ctx context.Context, g models.Genre) (models.Genre, error)
	ListGenres(ctx context.Context) ([]models.Genre, error)

	// SetWatch returns ErrNotFound for an unknown media.
	SetWatch(ctx context.Context, mediaID, userID string, wt models.WatchType) error
	ClearWatch(ctx context.Context, mediaID, userID string) error
	ListWatches(ctx context.Context, userID string) ([]models.MediaWatcher, error)
}

// Tx is a unit of work against the catalog. Finders return (nil, nil) when
// nothing matches.
type Tx interface {
	FindMediaByID(ctx context.Context, id string) (*models.Media, error)
	FindMediaByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error)
	InsertMedia(ctx context.Context, m *models.Media) error
	UpdateMedia(ctx context.Context, m *models.Media) error

	FindGenreByName(ctx context.Context, name string) (*models.Genre, error)
	InsertKeyword(ctx context.Context, name string) (models.Keyword, error)

	AddGenre(ctx context.Context, mediaID string, genreID int) error
	RemoveGenre(ctx context.Context, mediaID string, genreID int) error
	AddKeyword(ctx context.Context, mediaID string, keywordID int) error
	RemoveKeyword(ctx context.Context, mediaID string, keywordID int) error

	// ReplacePoster deletes any Poster image of the media and inserts img.
	ReplacePoster(ctx context.Context, img models.MediaImage) error
}

// MediaQueryBuilder narrows and orders the catalog lazily; nothing is read
// until Count or Fetch. Each Where call ANDs one predicate.
type MediaQueryBuilder interface {
	WhereType(t models.MediaType) MediaQueryBuilder
	WhereAnyKeyword(ids []int) MediaQueryBuilder
	WhereGenre(name string) MediaQueryBuilder
	WhereWatchedBy(userID string, wt models.WatchType) MediaQueryBuilder
	WhereWatchedByOtherThan(userID string) MediaQueryBuilder
	WhereTitleContains(s string) MediaQueryBuilder
	OrderBy(sort string) MediaQueryBuilder

	Count(ctx context.Context) (int, error)
	Fetch(ctx context.Context, offset, limit int) ([]models.MediaSummary, error)
}
