// Package memstore is an in-process catalog.Store used in development mode
// and by tests. Transactions work on a copy of the state that replaces the
// live state on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/models"
)

type state struct {
	media         map[string]models.Media
	genres        map[int]models.Genre
	keywords      map[int]models.Keyword
	mediaGenres   map[string]map[int]bool
	mediaKeywords map[string]map[int]bool
	images        map[string][]models.MediaImage
	watchers      []models.MediaWatcher
	ratings       []models.Rating
	nextGenreID   int
	nextKeywordID int
}

func newState() *state {
	return &state{
		media:         make(map[string]models.Media),
		genres:        make(map[int]models.Genre),
		keywords:      make(map[int]models.Keyword),
		mediaGenres:   make(map[string]map[int]bool),
		mediaKeywords: make(map[string]map[int]bool),
		images:        make(map[string][]models.MediaImage),
		nextGenreID:   1,
		nextKeywordID: 1,
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.media {
		c.media[k] = v
	}
	for k, v := range s.genres {
		c.genres[k] = v
	}
	for k, v := range s.keywords {
		c.keywords[k] = v
	}
	for k, set := range s.mediaGenres {
		c.mediaGenres[k] = copySet(set)
	}
	for k, set := range s.mediaKeywords {
		c.mediaKeywords[k] = copySet(set)
	}
	for k, imgs := range s.images {
		c.images[k] = append([]models.MediaImage(nil), imgs...)
	}
	c.watchers = append([]models.MediaWatcher(nil), s.watchers...)
	c.ratings = append([]models.Rating(nil), s.ratings...)
	c.nextGenreID = s.nextGenreID
	c.nextKeywordID = s.nextKeywordID
	return c
}

func copySet(in map[int]bool) map[int]bool {
	out := make(map[int]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store implements catalog.Store. A published state is never mutated: every
// write builds a copy and swaps it in, so readers hold mu only to load cur.
type Store struct {
	// wmu serializes writers, including a transaction's whole fn.
	wmu sync.Mutex
	mu  sync.RWMutex
	cur *state
	now func() time.Time
}

func New() *Store {
	return &Store{cur: newState(), now: time.Now}
}

// WithTx runs fn against a private copy of the state. Readers keep seeing the
// last committed state while fn runs, poster uploads included.
func (s *Store) WithTx(ctx context.Context, fn func(tx catalog.Tx) error) error {
	return s.update(func(st *state) error {
		if err := fn(&Tx{st: st, now: s.now}); err != nil {
			return err
		}
		return ctx.Err()
	})
}

func (s *Store) update(fn func(st *state) error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	next := s.snapshot().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) Query(ctx context.Context) catalog.MediaQueryBuilder {
	return &queryBuilder{store: s, sort: models.SortTitle}
}

func (s *Store) GetDetails(ctx context.Context, id string) (*models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.load(id), nil
}

func (s *Store) FindByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.findExternal(mediaType, externalID), nil
}

func (s *Store) GetBatch(ctx context.Context, ids []string) ([]models.MediaSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.MediaSummary, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.cur.media[id]; ok {
			out = append(out, s.cur.summary(m))
		}
	}
	return out, nil
}

func (s *Store) DetailStatus(ctx context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cur.media[id]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return m.Title, m.IsDetailFull, nil
}

func (s *Store) UpsertGenre(ctx context.Context, g models.Genre) (models.Genre, error) {
	err := s.update(func(st *state) error {
		for id, existing := range st.genres {
			if existing.Name == g.Name {
				if g.APIID != 0 {
					existing.APIID = g.APIID
				}
				st.genres[id] = existing
				g = existing
				return nil
			}
		}
		g.ID = st.nextGenreID
		st.nextGenreID++
		st.genres[g.ID] = g
		return nil
	})
	return g, err
}

func (s *Store) ListGenres(ctx context.Context) ([]models.Genre, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Genre, 0, len(s.cur.genres))
	for _, g := range s.cur.genres {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ──────── Watch list ────────

func (s *Store) SetWatch(ctx context.Context, mediaID, userID string, wt models.WatchType) error {
	return s.update(func(st *state) error {
		if _, ok := st.media[mediaID]; !ok {
			return fmt.Errorf("%w: %s", catalog.ErrNotFound, mediaID)
		}
		for i, w := range st.watchers {
			if w.MediaID == mediaID && w.UserID == userID {
				st.watchers[i].WatchType = wt
				return nil
			}
		}
		st.watchers = append(st.watchers, models.MediaWatcher{MediaID: mediaID, UserID: userID, WatchType: wt})
		return nil
	})
}

func (s *Store) ClearWatch(ctx context.Context, mediaID, userID string) error {
	return s.update(func(st *state) error {
		kept := st.watchers[:0]
		for _, w := range st.watchers {
			if w.MediaID != mediaID || w.UserID != userID {
				kept = append(kept, w)
			}
		}
		st.watchers = kept
		return nil
	})
}

// ListWatches returns userID's entries ordered by media title.
func (s *Store) ListWatches(ctx context.Context, userID string) ([]models.MediaWatcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.MediaWatcher{}
	for _, w := range s.cur.watchers {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := s.cur.media[out[i].MediaID], s.cur.media[out[j].MediaID]
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return out[i].MediaID < out[j].MediaID
	})
	return out, nil
}

// ──────── Seeding helpers ────────

// AddWatcher appends a watcher row without checking the media exists.
func (s *Store) AddWatcher(w models.MediaWatcher) {
	_ = s.update(func(st *state) error {
		st.watchers = append(st.watchers, w)
		return nil
	})
}

func (s *Store) AddRating(r models.Rating) {
	_ = s.update(func(st *state) error {
		st.ratings = append(st.ratings, r)
		return nil
	})
}

// Keywords returns every keyword row, ordered by id.
func (s *Store) Keywords() []models.Keyword {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Keyword, 0, len(s.cur.keywords))
	for _, k := range s.cur.keywords {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MediaCount is the number of stored media rows.
func (s *Store) MediaCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cur.media)
}

// ──────── State readers ────────

func (st *state) load(id string) *models.Media {
	m, ok := st.media[id]
	if !ok {
		return nil
	}

	m.Genres = []models.Genre{}
	for gid := range st.mediaGenres[id] {
		m.Genres = append(m.Genres, st.genres[gid])
	}
	sort.Slice(m.Genres, func(i, j int) bool { return m.Genres[i].ID < m.Genres[j].ID })

	m.Keywords = []models.Keyword{}
	for kid := range st.mediaKeywords[id] {
		m.Keywords = append(m.Keywords, st.keywords[kid])
	}
	sort.Slice(m.Keywords, func(i, j int) bool { return m.Keywords[i].ID < m.Keywords[j].ID })

	m.Images = append([]models.MediaImage{}, st.images[id]...)
	return &m
}

func (st *state) averageRating(id string) *float64 {
	sum, n := 0, 0
	for _, r := range st.ratings {
		if r.MediaID == id {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := float64(sum) / float64(n)
	return &avg
}

func (st *state) watcherCount(id string) int {
	n := 0
	for _, w := range st.watchers {
		if w.MediaID == id {
			n++
		}
	}
	return n
}

func (st *state) summary(m models.Media) models.MediaSummary {
	sum := models.MediaSummary{
		ID:           m.ID,
		Title:        m.Title,
		Overview:     m.Overview,
		IsDetailFull: m.IsDetailFull,
		ExternalID:   m.ExternalID,
		MediaType:    m.MediaType,
		Rating:       st.averageRating(m.ID),
	}
	for _, img := range st.images[m.ID] {
		if img.ImageType == models.ImageTypePoster {
			p := img.Path
			sum.ImagePath = &p
			break
		}
	}
	return sum
}

// ──────── Tx ────────

// Tx implements catalog.Tx over a private copy of the store state.
type Tx struct {
	st  *state
	now func() time.Time
}

func (t *Tx) FindMediaByID(ctx context.Context, id string) (*models.Media, error) {
	return t.st.load(id), nil
}

func (t *Tx) FindMediaByExternalID(ctx context.Context, mediaType models.MediaType, externalID int) (*models.Media, error) {
	return t.st.findExternal(mediaType, externalID), nil
}

// findExternal picks the oldest match, then the lowest id.
func (s *state) findExternal(mediaType models.MediaType, externalID int) *models.Media {
	var best *models.Media
	for _, m := range s.media {
		if m.MediaType != mediaType || m.ExternalID != externalID {
			continue
		}
		if best == nil || m.CreatedAt.Before(best.CreatedAt) ||
			(m.CreatedAt.Equal(best.CreatedAt) && m.ID < best.ID) {
			m := m
			best = &m
		}
	}
	if best == nil {
		return nil
	}
	return s.load(best.ID)
}

func (t *Tx) InsertMedia(ctx context.Context, m *models.Media) error {
	if _, exists := t.st.media[m.ID]; exists {
		return fmt.Errorf("media %s already exists", m.ID)
	}
	now := t.now()
	m.CreatedAt, m.UpdatedAt = now, now
	t.st.media[m.ID] = stripAssociations(*m)
	return nil
}

func (t *Tx) UpdateMedia(ctx context.Context, m *models.Media) error {
	existing, ok := t.st.media[m.ID]
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, m.ID)
	}
	m.MediaType = existing.MediaType
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = t.now()
	t.st.media[m.ID] = stripAssociations(*m)
	return nil
}

func stripAssociations(m models.Media) models.Media {
	m.Genres, m.Keywords, m.Images = nil, nil, nil
	return m
}

func (t *Tx) FindGenreByName(ctx context.Context, name string) (*models.Genre, error) {
	for _, g := range t.st.genres {
		if g.Name == name {
			g := g
			return &g, nil
		}
	}
	return nil, nil
}

func (t *Tx) InsertKeyword(ctx context.Context, name string) (models.Keyword, error) {
	k := models.Keyword{ID: t.st.nextKeywordID, Name: name}
	t.st.nextKeywordID++
	t.st.keywords[k.ID] = k
	return k, nil
}

func (t *Tx) AddGenre(ctx context.Context, mediaID string, genreID int) error {
	if _, ok := t.st.genres[genreID]; !ok {
		return fmt.Errorf("genre %d does not exist", genreID)
	}
	addTo(t.st.mediaGenres, mediaID, genreID)
	return nil
}

func (t *Tx) RemoveGenre(ctx context.Context, mediaID string, genreID int) error {
	delete(t.st.mediaGenres[mediaID], genreID)
	return nil
}

func (t *Tx) AddKeyword(ctx context.Context, mediaID string, keywordID int) error {
	if _, ok := t.st.keywords[keywordID]; !ok {
		return fmt.Errorf("keyword %d does not exist", keywordID)
	}
	addTo(t.st.mediaKeywords, mediaID, keywordID)
	return nil
}

func (t *Tx) RemoveKeyword(ctx context.Context, mediaID string, keywordID int) error {
	delete(t.st.mediaKeywords[mediaID], keywordID)
	return nil
}

func addTo(sets map[string]map[int]bool, key string, id int) {
	set, ok := sets[key]
	if !ok {
		set = make(map[int]bool)
		sets[key] = set
	}
	set[id] = true
}

func (t *Tx) ReplacePoster(ctx context.Context, img models.MediaImage) error {
	kept := t.st.images[img.MediaID][:0:0]
	for _, existing := range t.st.images[img.MediaID] {
		if existing.ImageType != models.ImageTypePoster {
			kept = append(kept, existing)
		}
	}
	t.st.images[img.MediaID] = append(kept, img)
	return nil
}

// ──────── Query builder ────────

type predicate func(st *state, m models.Media) bool

type queryBuilder struct {
	store *Store
	preds []predicate
	sort  string
	// st is pinned by the first Count or Fetch so both see the same state.
	st *state
}

func (q *queryBuilder) pinned() *state {
	if q.st == nil {
		q.st = q.store.snapshot()
	}
	return q.st
}

func (q *queryBuilder) where(p predicate) catalog.MediaQueryBuilder {
	q.preds = append(q.preds, p)
	return q
}

func (q *queryBuilder) WhereType(t models.MediaType) catalog.MediaQueryBuilder {
	return q.where(func(_ *state, m models.Media) bool { return m.MediaType == t })
}

func (q *queryBuilder) WhereAnyKeyword(ids []int) catalog.MediaQueryBuilder {
	return q.where(func(st *state, m models.Media) bool {
		for _, id := range ids {
			if st.mediaKeywords[m.ID][id] {
				return true
			}
		}
		return false
	})
}

func (q *queryBuilder) WhereGenre(name string) catalog.MediaQueryBuilder {
	return q.where(func(st *state, m models.Media) bool {
		for gid := range st.mediaGenres[m.ID] {
			if st.genres[gid].Name == name {
				return true
			}
		}
		return false
	})
}

func (q *queryBuilder) WhereWatchedBy(userID string, wt models.WatchType) catalog.MediaQueryBuilder {
	return q.where(func(st *state, m models.Media) bool {
		for _, w := range st.watchers {
			if w.MediaID == m.ID && w.UserID == userID && w.WatchType == wt {
				return true
			}
		}
		return false
	})
}

func (q *queryBuilder) WhereWatchedByOtherThan(userID string) catalog.MediaQueryBuilder {
	return q.where(func(st *state, m models.Media) bool {
		for _, w := range st.watchers {
			if w.MediaID == m.ID && w.UserID != userID {
				return true
			}
		}
		return false
	})
}

func (q *queryBuilder) WhereTitleContains(s string) catalog.MediaQueryBuilder {
	return q.where(func(_ *state, m models.Media) bool { return strings.Contains(m.Title, s) })
}

func (q *queryBuilder) OrderBy(key string) catalog.MediaQueryBuilder {
	q.sort = key
	return q
}

func (q *queryBuilder) matches(st *state) []models.Media {
	var out []models.Media
	for _, m := range st.media {
		ok := true
		for _, p := range q.preds {
			if !p(st, m) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, m)
		}
	}
	return out
}

func (q *queryBuilder) Count(ctx context.Context) (int, error) {
	return len(q.matches(q.pinned())), nil
}

func (q *queryBuilder) Fetch(ctx context.Context, offset, limit int) ([]models.MediaSummary, error) {
	st := q.pinned()

	rows := make([]models.MediaSummary, 0)
	for _, m := range q.matches(st) {
		rows = append(rows, st.summary(m))
	}

	popularity := make(map[string]int, len(rows))
	dates := make(map[string]*time.Time, len(rows))
	for _, r := range rows {
		popularity[r.ID] = st.watcherCount(r.ID)
		dates[r.ID] = st.media[r.ID].ReleaseDate
	}

	less := orderFunc(q.sort, popularity, dates)
	sort.SliceStable(rows, func(i, j int) bool {
		if c := less(rows[i], rows[j]); c != 0 {
			return c < 0
		}
		return rows[i].ID < rows[j].ID
	})

	if offset >= len(rows) {
		return []models.MediaSummary{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

// orderFunc returns a three-way comparison for the sort key. Missing ratings
// and release dates compare after every present value in both directions.
func orderFunc(key string, popularity map[string]int, dates map[string]*time.Time) func(a, b models.MediaSummary) int {
	desc := strings.HasSuffix(key, "-desc")
	dir := func(c int) int {
		if desc {
			return -c
		}
		return c
	}

	switch strings.TrimSuffix(key, "-desc") {
	case models.SortPopularity:
		return func(a, b models.MediaSummary) int {
			return dir(popularity[a.ID] - popularity[b.ID])
		}
	case models.SortRating:
		return func(a, b models.MediaSummary) int {
			switch {
			case a.Rating == nil && b.Rating == nil:
				return 0
			case a.Rating == nil:
				return 1
			case b.Rating == nil:
				return -1
			}
			return dir(compareFloat(*a.Rating, *b.Rating))
		}
	case models.SortDate:
		return func(a, b models.MediaSummary) int {
			da, db := dates[a.ID], dates[b.ID]
			switch {
			case da == nil && db == nil:
				return 0
			case da == nil:
				return 1
			case db == nil:
				return -1
			}
			return dir(da.Compare(*db))
		}
	default:
		return func(a, b models.MediaSummary) int {
			return strings.Compare(a.Title, b.Title)
		}
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
