package catalog

import (
	"context"
	"fmt"

	"github.com/JustinTDCT/CineHub/internal/models"
)

// QueryPipeline serves filtered, sorted and paginated catalog pages. It never
// writes.
type QueryPipeline struct {
	store Store
}

func NewQueryPipeline(store Store) *QueryPipeline {
	return &QueryPipeline{store: store}
}

var sortKeys = map[string]bool{
	models.SortTitle:          true,
	models.SortPopularity:     true,
	models.SortPopularityDesc: true,
	models.SortRating:         true,
	models.SortRatingDesc:     true,
	models.SortDate:           true,
	models.SortDateDesc:       true,
}

// NormalizeSort maps unknown or empty sort keys to title order.
func NormalizeSort(s string) string {
	if sortKeys[s] {
		return s
	}
	return models.SortTitle
}

// Page applies q's filters in a fixed order, counts the matches and returns
// the requested page.
func (p *QueryPipeline) Page(ctx context.Context, q models.MediaQuery) (*models.MediaResult, error) {
	if q.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1, got %d", ErrValidation, q.Page)
	}
	if q.PageSize < 1 {
		return nil, fmt.Errorf("%w: page size must be > 0, got %d", ErrValidation, q.PageSize)
	}

	b, err := p.build(ctx, q)
	if err != nil {
		return nil, err
	}

	count, err := b.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count media: %w", err)
	}

	rows, err := b.Fetch(ctx, (q.Page-1)*q.PageSize, q.PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch media page: %w", err)
	}
	if rows == nil {
		rows = []models.MediaSummary{}
	}

	return &models.MediaResult{
		Results:        rows,
		ResultCount:    count,
		CurrentPage:    q.Page,
		ResultsPerPage: q.PageSize,
	}, nil
}

func (p *QueryPipeline) build(ctx context.Context, q models.MediaQuery) (MediaQueryBuilder, error) {
	b := p.store.Query(ctx)

	if q.MediaType != "" {
		t, ok := models.ParseMediaType(q.MediaType)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrTypeResolution, q.MediaType)
		}
		b = b.WhereType(t)
	}

	if len(q.KeywordIDs) > 0 {
		b = b.WhereAnyKeyword(q.KeywordIDs)
	}

	// One pass per genre: a media must carry every requested genre.
	for _, g := range q.Genres {
		if g == "" {
			continue
		}
		b = b.WhereGenre(g)
	}

	if q.WatchType != "" {
		wt, ok := models.ParseWatchType(q.WatchType)
		if !ok {
			return nil, fmt.Errorf("%w: watch type %q", ErrValidation, q.WatchType)
		}
		b = b.WhereWatchedBy(q.UserID, wt)
	}

	// TODO: confirm with product whether this pass should stay on by default;
	// it hides media nobody else has a watcher record for.
	if !q.IncludeUnwatched {
		b = b.WhereWatchedByOtherThan(q.UserID)
	}

	if q.Search != "" {
		b = b.WhereTitleContains(q.Search)
	}

	return b.OrderBy(NormalizeSort(q.Sort)), nil
}

// Details returns the full media record.
func (p *QueryPipeline) Details(ctx context.Context, id string) (*models.Media, error) {
	m, err := p.store.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// Batch returns summaries for ids in input order; unknown ids are skipped.
func (p *QueryPipeline) Batch(ctx context.Context, ids []string) ([]models.MediaSummary, error) {
	if len(ids) == 0 {
		return []models.MediaSummary{}, nil
	}
	return p.store.GetBatch(ctx, ids)
}

// IncompleteTitle returns the media's title when its details are not yet
// complete and "" when they are.
func (p *QueryPipeline) IncompleteTitle(ctx context.Context, id string) (string, error) {
	title, full, err := p.store.DetailStatus(ctx, id)
	if err != nil {
		return "", err
	}
	if full {
		return "", nil
	}
	return title, nil
}
