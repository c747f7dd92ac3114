package models

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type MediaType string

const (
	MediaTypeMovie MediaType = "Movie"
	MediaTypeShow  MediaType = "Show"
)

// mediaFactories is the closed set of variants a Media can be created as.
var mediaFactories = map[MediaType]func() *Media{
	MediaTypeMovie: func() *Media { return &Media{MediaType: MediaTypeMovie} },
	MediaTypeShow:  func() *Media { return &Media{MediaType: MediaTypeShow} },
}

// ParseMediaType resolves a variant tag. Matching is exact.
func ParseMediaType(tag string) (MediaType, bool) {
	t := MediaType(tag)
	_, ok := mediaFactories[t]
	return t, ok
}

// NewMedia builds an empty Media of the given variant with a fresh id.
func NewMedia(tag string) (*Media, error) {
	t, ok := ParseMediaType(tag)
	if !ok {
		return nil, fmt.Errorf("unknown media type %q", tag)
	}
	m := mediaFactories[t]()
	m.ID = uuid.New().String()
	return m, nil
}

type ImageType int

const (
	ImageTypePoster ImageType = iota
	ImageTypeOther
)

func (t ImageType) String() string {
	if t == ImageTypePoster {
		return "Poster"
	}
	return "Other"
}

type WatchType int

const (
	WatchTypeWatching WatchType = iota
	WatchTypeWatched
	WatchTypePlanToWatch
)

var watchTypeNames = map[string]WatchType{
	"watching":    WatchTypeWatching,
	"watched":     WatchTypeWatched,
	"plantowatch": WatchTypePlanToWatch,
}

func (w WatchType) String() string {
	for name, wt := range watchTypeNames {
		if wt == w {
			return name
		}
	}
	return "unknown"
}

// ParseWatchType is case-insensitive.
func ParseWatchType(s string) (WatchType, bool) {
	wt, ok := watchTypeNames[strings.ToLower(strings.TrimSpace(s))]
	return wt, ok
}

// ──────────────────── Catalog ────────────────────

type Media struct {
	ID           string     `json:"id"`
	MediaType    MediaType  `json:"media_type"`
	Title        string     `json:"title"`
	Overview     string     `json:"overview"`
	Language     string     `json:"language,omitempty"`
	Runtime      int        `json:"runtime"`
	Budget       int64      `json:"budget"`
	ReleaseDate  *time.Time `json:"release_date,omitempty"`
	TrailerURL   string     `json:"trailer_url,omitempty"`
	IsDetailFull bool       `json:"is_detail_full"`
	ExternalID   int        `json:"external_id"`
	CreatorID    string     `json:"creator_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Genres   []Genre      `json:"genres"`
	Keywords []Keyword    `json:"keywords"`
	Images   []MediaImage `json:"images"`
}

// Poster returns the media's poster image, if any.
func (m *Media) Poster() *MediaImage {
	for i := range m.Images {
		if m.Images[i].ImageType == ImageTypePoster {
			return &m.Images[i]
		}
	}
	return nil
}

type Genre struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	APIID int    `json:"api_id,omitempty"`
}

type Keyword struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type MediaImage struct {
	ID          string    `json:"id"`
	MediaID     string    `json:"media_id"`
	ImageType   ImageType `json:"image_type"`
	Path        string    `json:"path"`
	Extension   string    `json:"extension"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
}

type MediaWatcher struct {
	MediaID   string    `json:"media_id"`
	UserID    string    `json:"user_id"`
	WatchType WatchType `json:"watch_type"`
}

type Rating struct {
	MediaID   string `json:"media_id"`
	CreatorID string `json:"creator_id"`
	Score     int    `json:"score"`
}

// ──────────────────── Reconciliation input ────────────────────

// KeywordEntry is one element of the keyword JSON list. ID 0 means "create Value".
type KeywordEntry struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

type ImageUpload struct {
	FileName string
	Content  io.Reader
}

// EditPayload is the edit/import document merged into a Media. Nil pointers and
// empty strings leave the stored value untouched.
type EditPayload struct {
	ID          string       `json:"id,omitempty"`
	MediaType   string       `json:"media_type,omitempty"`
	Title       string       `json:"title"`
	Overview    string       `json:"overview"`
	Language    string       `json:"language,omitempty"`
	Runtime     *int         `json:"runtime,omitempty"`
	Budget      *int64       `json:"budget,omitempty"`
	TrailerURL  string       `json:"trailer_url,omitempty"`
	ReleaseDate *time.Time   `json:"release_date,omitempty"`
	ExternalID  int          `json:"external_id,omitempty"`
	Genres      string       `json:"genres"`
	Keywords    string       `json:"keywords"`
	Poster      *ImageUpload `json:"-"`
}

// ──────────────────── Query ────────────────────

const (
	SortTitle          = "title"
	SortPopularity     = "popularity"
	SortPopularityDesc = "popularity-desc"
	SortRating         = "rating"
	SortRatingDesc     = "rating-desc"
	SortDate           = "date"
	SortDateDesc       = "date-desc"
)

type MediaQuery struct {
	Page       int
	PageSize   int
	MediaType  string
	KeywordIDs []int
	Genres     []string
	WatchType  string
	UserID     string
	Search     string
	Sort       string
	// IncludeUnwatched disables the default pass that keeps only media
	// somebody other than UserID has a watcher record for.
	IncludeUnwatched bool
}

type MediaSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Overview     string    `json:"overview"`
	IsDetailFull bool      `json:"is_detail_full"`
	ExternalID   int       `json:"external_id"`
	ImagePath    *string   `json:"image_path,omitempty"`
	MediaType    MediaType `json:"media_type"`
	Rating       *float64  `json:"rating,omitempty"`
}

type MediaResult struct {
	Results        []MediaSummary `json:"results"`
	ResultCount    int            `json:"result_count"`
	CurrentPage    int            `json:"current_page"`
	ResultsPerPage int            `json:"results_per_page"`
}
