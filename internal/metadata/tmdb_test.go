package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineHub/internal/models"
)

var pngPoster = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 13}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/movie/popular", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"page":2,"results":[{"id":11},{"id":12}]}`))
	})
	mux.HandleFunc("/movie/348", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "keywords,videos", r.URL.Query().Get("append_to_response"))
		w.Write([]byte(`{
			"id": 348, "title": "Alien", "overview": "In space...", "original_language": "en",
			"runtime": 117, "budget": 11000000, "release_date": "1979-05-25", "poster_path": "/alien.png",
			"genres": [{"id": 27, "name": "Horror"}, {"id": 878, "name": "Science Fiction"}],
			"keywords": {"keywords": [{"id": 1, "name": "android"}, {"id": 2, "name": "space"}]},
			"videos": {"results": [{"key": "teaser", "site": "YouTube", "type": "Teaser"}, {"key": "abc", "site": "YouTube", "type": "Trailer"}]}
		}`))
	})
	mux.HandleFunc("/tv/1399", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": 1399, "name": "Game of Thrones", "overview": "Seven noble families...",
			"episode_run_time": [60], "first_air_date": "2011-04-17",
			"genres": [{"id": 10765, "name": "Sci-Fi & Fantasy"}],
			"keywords": {"results": [{"id": 5, "name": "dragon"}]}
		}`))
	})
	mux.HandleFunc("/tv/2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 2, "name": "No overview", "overview": ""}`))
	})
	mux.HandleFunc("/movie/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/genre/tv/list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"genres":[{"id":10759,"name":"Action & Adventure"},{"id":18,"name":"Drama"}]}`))
	})
	mux.HandleFunc("/img/alien.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngPoster)
	})
	mux.HandleFunc("/movie/7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 7, "title": "Exif", "overview": "o", "poster_path": "/exif.jpg"}`))
	})
	mux.HandleFunc("/img/exif.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x16, 'E', 'x', 'i', 'f'})
	})
	mux.HandleFunc("/movie/8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 8, "title": "Gif", "overview": "o", "poster_path": "/still.gif"}`))
	})
	mux.HandleFunc("/img/still.gif", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unsupported poster type should not be downloaded")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSource(srv *httptest.Server, opts ...Option) *TMDBSource {
	opts = append([]Option{WithImageBaseURL(srv.URL + "/img")}, opts...)
	return NewTMDBSource("key", srv.URL, 0, opts...)
}

func TestListIDs(t *testing.T) {
	src := newTestSource(newTestServer(t))

	ids, err := src.ListIDs(context.Background(), models.MediaTypeMovie, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{11, 12}, ids)
}

func TestFetchDetail_Movie(t *testing.T) {
	src := newTestSource(newTestServer(t))

	p, err := src.FetchDetail(context.Background(), 348, models.MediaTypeMovie)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "Movie", p.MediaType)
	assert.Equal(t, "Alien", p.Title)
	assert.Equal(t, 348, p.ExternalID)
	assert.Equal(t, "en", p.Language)
	require.NotNil(t, p.Runtime)
	assert.Equal(t, 117, *p.Runtime)
	require.NotNil(t, p.Budget)
	assert.Equal(t, int64(11000000), *p.Budget)
	require.NotNil(t, p.ReleaseDate)
	assert.Equal(t, time.Date(1979, 5, 25, 0, 0, 0, 0, time.UTC), *p.ReleaseDate)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", p.TrailerURL)
	assert.Equal(t, "Horror, Science Fiction", p.Genres)

	var kws []models.KeywordEntry
	require.NoError(t, json.Unmarshal([]byte(p.Keywords), &kws))
	assert.Equal(t, []models.KeywordEntry{{Value: "android"}, {Value: "space"}}, kws)

	require.NotNil(t, p.Poster)
	assert.Equal(t, "poster.png", p.Poster.FileName)
	body, err := io.ReadAll(p.Poster.Content)
	require.NoError(t, err)
	assert.Equal(t, pngPoster, body)
}

func TestFetchDetail_Show(t *testing.T) {
	src := newTestSource(newTestServer(t))

	p, err := src.FetchDetail(context.Background(), 1399, models.MediaTypeShow)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Show", p.MediaType)
	assert.Equal(t, "Game of Thrones", p.Title)
	assert.Equal(t, 60, *p.Runtime)
	assert.Nil(t, p.Budget)
	assert.Equal(t, "Sci-Fi & Fantasy", p.Genres)
	assert.Contains(t, p.Keywords, `"value":"dragon"`)
	assert.Nil(t, p.Poster)
}

func TestFetchDetail_SkipsMissingAndIncomplete(t *testing.T) {
	src := newTestSource(newTestServer(t))
	ctx := context.Background()

	p, err := src.FetchDetail(ctx, 999, models.MediaTypeMovie)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = src.FetchDetail(ctx, 2, models.MediaTypeShow)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFetchDetail_ServerError(t *testing.T) {
	src := newTestSource(newTestServer(t))

	_, err := src.FetchDetail(context.Background(), 500, models.MediaTypeMovie)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 500")
}

func TestFetchDetail_OversizedPosterDropped(t *testing.T) {
	src := newTestSource(newTestServer(t), WithMaxPosterBytes(4))

	p, err := src.FetchDetail(context.Background(), 348, models.MediaTypeMovie)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.Poster)
}

func TestFetchDetail_UnacceptedPosterDropped(t *testing.T) {
	src := newTestSource(newTestServer(t))

	for _, id := range []int{7, 8} {
		p, err := src.FetchDetail(context.Background(), id, models.MediaTypeMovie)
		require.NoError(t, err)
		require.NotNil(t, p, "movie %d", id)
		assert.Nil(t, p.Poster, "movie %d", id)
	}
}

func TestGenres(t *testing.T) {
	src := newTestSource(newTestServer(t))

	genres, err := src.Genres(context.Background(), models.MediaTypeShow)
	require.NoError(t, err)
	assert.Equal(t, []models.Genre{{Name: "Action & Adventure", APIID: 10759}, {Name: "Drama", APIID: 18}}, genres)
}

func TestMissingAPIKey(t *testing.T) {
	src := NewTMDBSource("", "http://unused", 0)
	_, err := src.ListIDs(context.Background(), models.MediaTypeMovie, 1)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"))
}

func TestUnsupportedKind(t *testing.T) {
	src := NewTMDBSource("key", "http://unused", 0)
	_, err := src.ListIDs(context.Background(), models.MediaType("Podcast"), 1)
	assert.Error(t, err)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	src := NewTMDBSource("key", "http://unused", 0.001)
	src.limiter.Allow() // drain the single burst token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.ListIDs(ctx, models.MediaTypeMovie, 1)
	assert.Error(t, err)
}
