package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
	"github.com/JustinTDCT/CineHub/internal/signature"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
	defaultMaxPoster    = 5 << 20
)

var errNotFound = errors.New("tmdb: not found")

// TMDBSource lists and fetches media from The Movie Database. All requests
// share one rate limiter.
type TMDBSource struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	client       *http.Client
	limiter      *rate.Limiter
	maxPoster    int64
	log          *slog.Logger
}

type Option func(*TMDBSource)

func WithHTTPClient(c *http.Client) Option { return func(s *TMDBSource) { s.client = c } }
func WithImageBaseURL(u string) Option     { return func(s *TMDBSource) { s.imageBaseURL = u } }
func WithMaxPosterBytes(n int64) Option    { return func(s *TMDBSource) { s.maxPoster = n } }

func NewTMDBSource(apiKey, baseURL string, ratePerSec float64, opts ...Option) *TMDBSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	s := &TMDBSource{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageBaseURL: defaultImageBaseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(limit, 1),
		maxPoster:    defaultMaxPoster,
		log:          logger.With("component", "tmdb"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func tmdbKind(kind models.MediaType) (string, error) {
	switch kind {
	case models.MediaTypeMovie:
		return "movie", nil
	case models.MediaTypeShow:
		return "tv", nil
	}
	return "", fmt.Errorf("tmdb: unsupported media type %q", kind)
}

func (s *TMDBSource) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if s.apiKey == "" {
		return fmt.Errorf("TMDB API key not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("TMDB request %s returned %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ──────── Listing ────────

// ListIDs returns the TMDB ids on one page of the popular list.
func (s *TMDBSource) ListIDs(ctx context.Context, kind models.MediaType, page int) ([]int, error) {
	k, err := tmdbKind(kind)
	if err != nil {
		return nil, err
	}
	var r struct {
		Results []struct {
			ID int `json:"id"`
		} `json:"results"`
	}
	params := url.Values{"page": {fmt.Sprint(page)}}
	if err := s.getJSON(ctx, "/"+k+"/popular", params, &r); err != nil {
		return nil, fmt.Errorf("list %s page %d: %w", k, page, err)
	}

	ids := make([]int, 0, len(r.Results))
	for _, res := range r.Results {
		ids = append(ids, res.ID)
	}
	return ids, nil
}

// Genres returns the source's genre vocabulary for kind.
func (s *TMDBSource) Genres(ctx context.Context, kind models.MediaType) ([]models.Genre, error) {
	k, err := tmdbKind(kind)
	if err != nil {
		return nil, err
	}
	var r struct {
		Genres []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"genres"`
	}
	if err := s.getJSON(ctx, "/genre/"+k+"/list", nil, &r); err != nil {
		return nil, fmt.Errorf("list %s genres: %w", k, err)
	}

	genres := make([]models.Genre, 0, len(r.Genres))
	for _, g := range r.Genres {
		genres = append(genres, models.Genre{Name: g.Name, APIID: g.ID})
	}
	return genres, nil
}

// ──────── Details ────────

type tmdbName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type tmdbDetail struct {
	ID               int        `json:"id"`
	Title            string     `json:"title"`
	Name             string     `json:"name"`
	Overview         string     `json:"overview"`
	OriginalLanguage string     `json:"original_language"`
	Runtime          int        `json:"runtime"`
	EpisodeRunTime   []int      `json:"episode_run_time"`
	Budget           int64      `json:"budget"`
	ReleaseDate      string     `json:"release_date"`
	FirstAirDate     string     `json:"first_air_date"`
	PosterPath       string     `json:"poster_path"`
	Genres           []tmdbName `json:"genres"`
	Keywords         struct {
		Keywords []tmdbName `json:"keywords"` // movies
		Results  []tmdbName `json:"results"`  // tv
	} `json:"keywords"`
	Videos struct {
		Results []struct {
			Key  string `json:"key"`
			Site string `json:"site"`
			Type string `json:"type"`
		} `json:"results"`
	} `json:"videos"`
}

// FetchDetail maps one TMDB record to an edit payload. It returns (nil, nil)
// when the record does not exist or lacks a title or overview.
func (s *TMDBSource) FetchDetail(ctx context.Context, id int, kind models.MediaType) (*models.EditPayload, error) {
	k, err := tmdbKind(kind)
	if err != nil {
		return nil, err
	}

	var d tmdbDetail
	params := url.Values{"append_to_response": {"keywords,videos"}}
	err = s.getJSON(ctx, fmt.Sprintf("/%s/%d", k, id), params, &d)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %d: %w", k, id, err)
	}

	p := mapDetail(&d, kind)
	if p == nil {
		return nil, nil
	}

	if d.PosterPath != "" {
		poster, err := s.downloadPoster(ctx, d.PosterPath)
		if err != nil {
			// The record is still useful without artwork.
			s.log.Warn("poster dropped", "tmdb_id", id, "poster_path", d.PosterPath, "error", err)
		} else {
			p.Poster = poster
		}
	}
	return p, nil
}

func mapDetail(d *tmdbDetail, kind models.MediaType) *models.EditPayload {
	title := d.Title
	date := d.ReleaseDate
	runtime := d.Runtime
	if kind == models.MediaTypeShow {
		title = d.Name
		date = d.FirstAirDate
		if len(d.EpisodeRunTime) > 0 {
			runtime = d.EpisodeRunTime[0]
		}
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(d.Overview) == "" {
		return nil
	}

	p := &models.EditPayload{
		MediaType:  string(kind),
		Title:      title,
		Overview:   d.Overview,
		Language:   d.OriginalLanguage,
		ExternalID: d.ID,
		TrailerURL: trailerURL(d),
	}
	if runtime > 0 {
		p.Runtime = &runtime
	}
	if d.Budget > 0 {
		budget := d.Budget
		p.Budget = &budget
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		p.ReleaseDate = &t
	}

	names := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		names = append(names, g.Name)
	}
	p.Genres = strings.Join(names, ", ")

	// Keywords go out as new entries; the ingest orchestrator matches them to
	// the stored record's keywords before reconciling.
	kws := append(d.Keywords.Keywords, d.Keywords.Results...)
	entries := make([]models.KeywordEntry, 0, len(kws))
	for _, kw := range kws {
		entries = append(entries, models.KeywordEntry{Value: kw.Name})
	}
	if len(entries) > 0 {
		b, _ := json.Marshal(entries)
		p.Keywords = string(b)
	}
	return p
}

func trailerURL(d *tmdbDetail) string {
	for _, v := range d.Videos.Results {
		if v.Site == "YouTube" && v.Type == "Trailer" && v.Key != "" {
			return "https://www.youtube.com/watch?v=" + v.Key
		}
	}
	return ""
}

// downloadPoster fetches the poster into memory, refusing files above the
// configured size and files the catalog's signature check would reject.
func (s *TMDBSource) downloadPoster(ctx context.Context, posterPath string) (*models.ImageUpload, error) {
	fileName := "poster" + path.Ext(posterPath)
	if ext := signature.Extension(fileName); !signature.Supported(ext) {
		return nil, fmt.Errorf("%w: %q", signature.ErrUnsupportedExtension, ext)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.imageBaseURL+posterPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poster download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxPoster+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxPoster {
		return nil, fmt.Errorf("poster exceeds %d bytes", s.maxPoster)
	}

	if _, _, err := signature.Validate(fileName, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &models.ImageUpload{
		FileName: fileName,
		Content:  bytes.NewReader(data),
	}, nil
}
