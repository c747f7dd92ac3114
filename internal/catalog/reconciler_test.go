package catalog_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/memstore"
	"github.com/JustinTDCT/CineHub/internal/models"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string][]byte)}
}

func (f *fakeFiles) Save(ctx context.Context, root, rel string, r io.Reader) error {
	if f.fail != nil {
		return f.fail
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[root+"/"+rel] = b
	return nil
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

func seedGenres(t *testing.T, s *memstore.Store, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := s.UpsertGenre(context.Background(), models.Genre{Name: n})
		require.NoError(t, err)
	}
}

func genreNames(m *models.Media) []string {
	var out []string
	for _, g := range m.Genres {
		out = append(out, g.Name)
	}
	return out
}

func basePayload() *models.EditPayload {
	return &models.EditPayload{
		MediaType: "Movie",
		Title:     "Alien",
		Overview:  "In space no one can hear you scream.",
	}
}

func setup(t *testing.T) (*memstore.Store, *fakeFiles, *catalog.Reconciler) {
	t.Helper()
	store := memstore.New()
	files := newFakeFiles()
	return store, files, catalog.NewReconciler(store, files)
}

func TestReconcile_CreatesMedia(t *testing.T) {
	store, _, rec := setup(t)
	seedGenres(t, store, "Horror", "Sci-Fi")
	ctx := context.Background()

	runtime := 117
	p := basePayload()
	p.Runtime = &runtime
	p.Genres = "Horror, Sci-Fi"

	id, err := rec.Reconcile(ctx, p, "user-1", "/data")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, models.MediaTypeMovie, m.MediaType)
	assert.Equal(t, "Alien", m.Title)
	assert.Equal(t, 117, m.Runtime)
	assert.Equal(t, "user-1", m.CreatorID)
	assert.True(t, m.IsDetailFull)
	assert.ElementsMatch(t, []string{"Horror", "Sci-Fi"}, genreNames(m))
}

func TestReconcile_Idempotent(t *testing.T) {
	store, _, rec := setup(t)
	seedGenres(t, store, "Horror")
	ctx := context.Background()

	p := basePayload()
	p.Genres = "Horror"
	p.Keywords = `[{"id":0,"value":"xenomorph"}]`

	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)
	first, err := store.GetDetails(ctx, id)
	require.NoError(t, err)

	// Second pass refers to the keyword that now exists.
	p.ID = id
	p.Keywords = `[{"id":` + strconv.Itoa(first.Keywords[0].ID) + `,"value":"xenomorph"}]`
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	second, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.Genres, second.Genres)
	assert.Equal(t, first.Keywords, second.Keywords)
	assert.Equal(t, first.Title, second.Title)
	assert.Len(t, store.Keywords(), 1)
	assert.Equal(t, 1, store.MediaCount())
}

func TestReconcile_GenreDiff(t *testing.T) {
	store, _, rec := setup(t)
	seedGenres(t, store, "A", "B", "C")
	ctx := context.Background()

	p := basePayload()
	p.Genres = "A & B"
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	p.ID = id
	p.Genres = "A, C"
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, genreNames(m))
}

func TestReconcile_UnknownGenreDropped(t *testing.T) {
	store, _, rec := setup(t)
	seedGenres(t, store, "Drama")
	ctx := context.Background()

	p := basePayload()
	p.Genres = "Drama, Telenovela"
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drama"}, genreNames(m))
}

func TestReconcile_KeywordDiff(t *testing.T) {
	store, _, rec := setup(t)
	ctx := context.Background()

	p := basePayload()
	p.Keywords = `[{"id":0,"value":"space"},{"id":0,"value":"android"}]`
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	require.Len(t, m.Keywords, 2)
	space := m.Keywords[0]
	require.Equal(t, "space", space.Name)

	// Keep "space", drop "android", create "ship" twice.
	p.ID = id
	p.Keywords = `[{"id":` + strconv.Itoa(space.ID) + `,"value":"space"},{"id":0,"value":"ship"},{"id":0,"value":"ship"}]`
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	m, err = store.GetDetails(ctx, id)
	require.NoError(t, err)
	require.Len(t, m.Keywords, 3)
	assert.Equal(t, space, m.Keywords[0])
	assert.Equal(t, "ship", m.Keywords[1].Name)
	assert.Equal(t, "ship", m.Keywords[2].Name)
	assert.NotEqual(t, m.Keywords[1].ID, m.Keywords[2].ID)
	assert.Len(t, store.Keywords(), 4)
}

func TestReconcile_PosterReplaced(t *testing.T) {
	store, files, rec := setup(t)
	ctx := context.Background()

	p := basePayload()
	p.Poster = &models.ImageUpload{FileName: "alien.jpg", Content: bytes.NewReader(jpegBytes)}
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	p.ID = id
	p.Poster = &models.ImageUpload{FileName: "alien.jpg", Content: bytes.NewReader(jpegBytes)}
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	require.Len(t, m.Images, 1)
	poster := m.Poster()
	require.NotNil(t, poster)
	assert.Equal(t, "/images/posters/poster-"+id+".jpg", poster.Path)
	assert.Equal(t, "jpg", poster.Extension)
	assert.Equal(t, "Alien - Poster", poster.Title)

	require.Equal(t, 1, files.count())
	assert.Equal(t, jpegBytes, files.files["/data/images/posters/poster-"+id+".jpg"])
}

func TestReconcile_BadPosterRollsBack(t *testing.T) {
	store, files, rec := setup(t)
	seedGenres(t, store, "Horror")
	ctx := context.Background()

	id, err := rec.Reconcile(ctx, basePayload(), "", "/data")
	require.NoError(t, err)

	p := basePayload()
	p.ID = id
	p.Title = "Aliens"
	p.Genres = "Horror"
	p.Poster = &models.ImageUpload{FileName: "aliens.png", Content: bytes.NewReader(jpegBytes)}
	_, err = rec.Reconcile(ctx, p, "", "/data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrValidation))

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alien", m.Title)
	assert.Empty(t, m.Genres)
	assert.Zero(t, files.count())
}

func TestReconcile_FileStoreFailureRollsBack(t *testing.T) {
	store, files, rec := setup(t)
	files.fail = errors.New("disk full")
	ctx := context.Background()

	p := basePayload()
	p.Poster = &models.ImageUpload{FileName: "alien.jpg", Content: bytes.NewReader(jpegBytes)}
	_, err := rec.Reconcile(ctx, p, "", "/data")
	require.Error(t, err)
	assert.Zero(t, store.MediaCount())
}

func TestReconcile_UnknownType(t *testing.T) {
	store, _, rec := setup(t)

	p := basePayload()
	p.MediaType = "Podcast"
	_, err := rec.Reconcile(context.Background(), p, "", "/data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrTypeResolution))
	assert.Zero(t, store.MediaCount())
}

func TestReconcile_LocatesByExternalID(t *testing.T) {
	store, _, rec := setup(t)
	ctx := context.Background()

	p := basePayload()
	p.ExternalID = 348
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	again := basePayload()
	again.ExternalID = 348
	again.Overview = "Updated overview."
	id2, err := rec.Reconcile(ctx, again, "", "/data")
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, 1, store.MediaCount())

	// Same external id under another variant is a different media.
	show := basePayload()
	show.MediaType = "Show"
	show.ExternalID = 348
	id3, err := rec.Reconcile(ctx, show, "", "/data")
	require.NoError(t, err)
	assert.NotEqual(t, id, id3)
}

func TestReconcile_UnknownIDCreates(t *testing.T) {
	store, _, rec := setup(t)

	p := basePayload()
	p.ID = "does-not-exist"
	id, err := rec.Reconcile(context.Background(), p, "", "/data")
	require.NoError(t, err)
	assert.NotEqual(t, "does-not-exist", id)
	assert.Equal(t, 1, store.MediaCount())
}

func TestReconcile_TitleRequired(t *testing.T) {
	store, _, rec := setup(t)

	p := basePayload()
	p.Title = "   "
	_, err := rec.Reconcile(context.Background(), p, "", "/data")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrValidation))
	assert.Zero(t, store.MediaCount())
}

func TestReconcile_EmptyFieldsKeepStoredValues(t *testing.T) {
	store, _, rec := setup(t)
	ctx := context.Background()

	p := basePayload()
	p.Language = "en"
	id, err := rec.Reconcile(ctx, p, "", "/data")
	require.NoError(t, err)

	_, err = rec.Reconcile(ctx, &models.EditPayload{ID: id, Title: "Alien (1979)"}, "", "/data")
	require.NoError(t, err)

	m, err := store.GetDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alien (1979)", m.Title)
	assert.Equal(t, "en", m.Language)
	assert.Equal(t, "In space no one can hear you scream.", m.Overview)
}

func TestReconcile_BadKeywordJSON(t *testing.T) {
	_, _, rec := setup(t)

	p := basePayload()
	p.Keywords = "not json"
	_, err := rec.Reconcile(context.Background(), p, "", "/data")
	assert.True(t, errors.Is(err, catalog.ErrValidation))
}
