package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/memstore"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// ──────── fakes ────────

type fakeSource struct {
	pages     map[int][]int
	pageErr   map[int]error
	detailErr map[int]error
	skip      map[int]bool
	panicOn   map[int]bool
	genres    []models.Genre
	keywords  string
}

func (f *fakeSource) ListIDs(ctx context.Context, kind models.MediaType, page int) ([]int, error) {
	if err := f.pageErr[page]; err != nil {
		return nil, err
	}
	return f.pages[page], nil
}

func (f *fakeSource) FetchDetail(ctx context.Context, id int, kind models.MediaType) (*models.EditPayload, error) {
	if f.panicOn[id] {
		panic("boom")
	}
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	if f.skip[id] {
		return nil, nil
	}
	return &models.EditPayload{
		MediaType:  string(kind),
		Title:      fmt.Sprintf("Title %d", id),
		Overview:   "Overview",
		ExternalID: id,
		Genres:     "Drama",
		Keywords:   f.keywords,
	}, nil
}

func (f *fakeSource) Genres(ctx context.Context, kind models.MediaType) ([]models.Genre, error) {
	return f.genres, nil
}

type fakeReconciler struct {
	mu     sync.Mutex
	seen   []int
	failOn map[int]bool
	after  func(id int)
}

func (r *fakeReconciler) Reconcile(ctx context.Context, p *models.EditPayload, userID, root string) (string, error) {
	r.mu.Lock()
	r.seen = append(r.seen, p.ExternalID)
	r.mu.Unlock()
	if r.after != nil {
		defer r.after(p.ExternalID)
	}
	if r.failOn[p.ExternalID] {
		return "", errors.New("store unavailable")
	}
	return fmt.Sprintf("media-%d", p.ExternalID), nil
}

type recordingSink struct {
	events []Progress
}

func (s *recordingSink) Report(ctx context.Context, p Progress) {
	s.events = append(s.events, p)
}

// ──────── tests ────────

func TestRun_ItemFailureDoesNotStopRun(t *testing.T) {
	src := &fakeSource{pages: map[int][]int{1: {1, 2, 3, 4, 5}}}
	rec := &fakeReconciler{failOn: map[int]bool{3: true}}
	sink := &recordingSink{}
	o := New(src, rec, nil, sink, Options{})

	rep, err := o.RunMovies(context.Background(), 1, "/data")
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Reconciled)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, StateCompleted, rep.State)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.seen)
	require.Len(t, rep.Items, 5)
	assert.Equal(t, ItemFailed, rep.Items[2].Status)
	assert.Error(t, rep.Items[2].Err)
	assert.Equal(t, "media-5", rep.Items[4].MediaID)

	// one event per page plus the final one
	require.Len(t, sink.events, 2)
	assert.Equal(t, StateRunning, sink.events[0].State)
	assert.Equal(t, 100, sink.events[0].Percent())
	assert.Equal(t, StateCompleted, sink.events[1].State)
}

func TestRun_FetchErrorAndPanicAreItemFailures(t *testing.T) {
	src := &fakeSource{
		pages:     map[int][]int{1: {1, 2, 3, 4, 5, 6, 7, 8}},
		detailErr: map[int]error{2: errors.New("timeout")},
		panicOn:   map[int]bool{5: true},
	}
	o := New(src, &fakeReconciler{}, nil, nil, Options{})

	rep, err := o.Run(context.Background(), models.MediaTypeShow, 1, "")
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Reconciled)
	assert.Equal(t, 2, rep.Failed)
	assert.Contains(t, rep.Items[4].Err.Error(), "panic")
}

func TestRun_SkippedItemsAreNotAttempts(t *testing.T) {
	src := &fakeSource{
		pages: map[int][]int{1: {1, 2, 3, 4, 5}},
		skip:  map[int]bool{1: true, 2: true, 3: true},
	}
	rec := &fakeReconciler{failOn: map[int]bool{4: true}}
	o := New(src, rec, nil, nil, Options{})

	rep, err := o.RunShows(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Reconciled)
	assert.Equal(t, []int{4, 5}, rec.seen)
}

func TestRun_BreakerOpensOnHighFailureRate(t *testing.T) {
	src := &fakeSource{pages: map[int][]int{1: {1, 2, 3, 4, 5, 6}, 2: {7}}}
	rec := &fakeReconciler{failOn: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true}}
	sink := &recordingSink{}
	o := New(src, rec, nil, sink, Options{})

	rep, err := o.RunMovies(context.Background(), 2, "")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 4, rep.Failed)
	assert.Equal(t, []int{1, 2, 3, 4}, rec.seen)
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, 0, rep.PagesCompleted)
	require.NotEmpty(t, sink.events)
	assert.Equal(t, StateFailed, sink.events[len(sink.events)-1].State)
}

func TestRun_BreakerIsPerPage(t *testing.T) {
	// three failures on page 1 stay under the sample floor; page 2 starts fresh
	src := &fakeSource{pages: map[int][]int{1: {1, 2, 3}, 2: {4, 5, 6, 7}}}
	rec := &fakeReconciler{failOn: map[int]bool{1: true, 2: true, 3: true, 4: true}}
	o := New(src, rec, nil, nil, Options{})

	rep, err := o.RunMovies(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Failed)
	assert.Equal(t, 3, rep.Reconciled)
	assert.Equal(t, 2, rep.PagesCompleted)
}

func TestRun_CancelledBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{pages: map[int][]int{1: {1, 2, 3, 4}}}
	rec := &fakeReconciler{after: func(id int) {
		if id == 2 {
			cancel()
		}
	}}
	o := New(src, rec, nil, nil, Options{})

	rep, err := o.RunMovies(ctx, 1, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCancelled, rep.State)
	assert.Equal(t, []int{1, 2}, rec.seen)
	assert.Equal(t, 2, rep.Reconciled)
}

func TestRun_ListingFailures(t *testing.T) {
	t.Run("recovers after a failed page", func(t *testing.T) {
		src := &fakeSource{
			pages:   map[int][]int{2: {10}, 3: {11}},
			pageErr: map[int]error{1: errors.New("503")},
		}
		o := New(src, &fakeReconciler{}, nil, nil, Options{})

		rep, err := o.RunMovies(context.Background(), 3, "")
		require.NoError(t, err)
		assert.Equal(t, 1, rep.PageFailures)
		assert.Equal(t, 2, rep.PagesCompleted)
		assert.Equal(t, 2, rep.Reconciled)
	})

	t.Run("aborts after consecutive failures", func(t *testing.T) {
		down := errors.New("503")
		src := &fakeSource{pageErr: map[int]error{1: down, 2: down, 3: down, 4: down}}
		o := New(src, &fakeReconciler{}, nil, nil, Options{})

		rep, err := o.RunMovies(context.Background(), 5, "")
		require.ErrorIs(t, err, ErrSourceUnavailable)
		assert.Equal(t, 3, rep.PageFailures)
		assert.Equal(t, StateFailed, rep.State)
	})
}

func TestRun_ReconcilesIntoStore(t *testing.T) {
	store := memstore.New()
	_, err := store.UpsertGenre(context.Background(), models.Genre{Name: "Drama", APIID: 18})
	require.NoError(t, err)

	src := &fakeSource{pages: map[int][]int{1: {100, 101}}}
	o := New(src, catalog.NewReconciler(store, nil), store, nil, Options{})

	_, err = o.RunShows(context.Background(), 1, "")
	require.NoError(t, err)
	// a second run updates in place
	rep, err := o.RunShows(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Reconciled)
	assert.Equal(t, 2, store.MediaCount())

	m, err := store.GetDetails(context.Background(), rep.Items[0].MediaID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, models.MediaTypeShow, m.MediaType)
	assert.Equal(t, []models.Genre{{ID: 1, Name: "Drama", APIID: 18}}, m.Genres)
}

func TestRun_ReimportKeepsKeywordRows(t *testing.T) {
	store := memstore.New()
	src := &fakeSource{
		pages:    map[int][]int{1: {7}},
		keywords: `[{"id":0,"value":"space"},{"id":0,"value":"alien"},{"id":0,"value":"space"}]`,
	}
	o := New(src, catalog.NewReconciler(store, nil), store, nil, Options{})

	var firstIDs []int
	for run := 1; run <= 3; run++ {
		rep, err := o.RunMovies(context.Background(), 1, "")
		require.NoError(t, err)
		require.Equal(t, 1, rep.Reconciled, "run %d", run)

		m, err := store.GetDetails(context.Background(), rep.Items[0].MediaID)
		require.NoError(t, err)
		require.NotNil(t, m)
		ids := make([]int, 0, len(m.Keywords))
		for _, k := range m.Keywords {
			ids = append(ids, k.ID)
		}

		assert.Len(t, store.Keywords(), 3, "run %d", run)
		if run == 1 {
			firstIDs = ids
			continue
		}
		assert.ElementsMatch(t, firstIDs, ids, "run %d", run)
	}
}

func TestRun_NewKeywordsStillCreated(t *testing.T) {
	store := memstore.New()
	src := &fakeSource{pages: map[int][]int{1: {7}}, keywords: `[{"id":0,"value":"space"}]`}
	o := New(src, catalog.NewReconciler(store, nil), store, nil, Options{})

	_, err := o.RunMovies(context.Background(), 1, "")
	require.NoError(t, err)

	src.keywords = `[{"id":0,"value":"space"},{"id":0,"value":"heist"}]`
	rep, err := o.RunMovies(context.Background(), 1, "")
	require.NoError(t, err)

	m, err := store.GetDetails(context.Background(), rep.Items[0].MediaID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []models.Keyword{{ID: 1, Name: "space"}, {ID: 2, Name: "heist"}}, store.Keywords())
	assert.Len(t, m.Keywords, 2)
}

func TestSeedGenres_SplitsCompoundNames(t *testing.T) {
	store := memstore.New()
	src := &fakeSource{genres: []models.Genre{
		{Name: "Drama", APIID: 18},
		{Name: "Action & Adventure", APIID: 10759},
	}}
	o := New(src, nil, store, nil, Options{})

	n, err := o.SeedGenres(context.Background(), models.MediaTypeShow)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	genres, err := store.ListGenres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Genre{
		{ID: 2, Name: "Action"},
		{ID: 3, Name: "Adventure"},
		{ID: 1, Name: "Drama", APIID: 18},
	}, genres)
}
