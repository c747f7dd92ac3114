package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/JustinTDCT/CineHub/internal/catalog"
	"github.com/JustinTDCT/CineHub/internal/models"
)

// summaryColumns projects a media row to a MediaSummary. The poster path and
// mean rating come from correlated subqueries so no GROUP BY is needed.
const summaryColumns = `m.id, m.title, m.overview, m.is_detail_full, m.external_id, m.media_type,
	(SELECT mi.path FROM media_images mi WHERE mi.media_id = m.id AND mi.image_type = 0 LIMIT 1) AS image_path,
	(SELECT AVG(r.score)::float8 FROM ratings r WHERE r.media_id = m.id) AS rating`

func scanSummary(row interface{ Scan(dest ...interface{}) error }) (models.MediaSummary, error) {
	var (
		s         models.MediaSummary
		imagePath sql.NullString
		rating    sql.NullFloat64
	)
	err := row.Scan(&s.ID, &s.Title, &s.Overview, &s.IsDetailFull, &s.ExternalID, &s.MediaType, &imagePath, &rating)
	if err != nil {
		return s, err
	}
	if imagePath.Valid {
		p := imagePath.String
		s.ImagePath = &p
	}
	if rating.Valid {
		v := rating.Float64
		s.Rating = &v
	}
	return s, nil
}

// mediaQuery accumulates WHERE fragments with their positional args. Nothing
// touches the database until Count or Fetch.
type mediaQuery struct {
	db     *sql.DB
	wheres []string
	args   []interface{}
	sort   string
}

func (q *mediaQuery) param(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *mediaQuery) WhereType(t models.MediaType) catalog.MediaQueryBuilder {
	q.wheres = append(q.wheres, `m.media_type = `+q.param(string(t)))
	return q
}

func (q *mediaQuery) WhereAnyKeyword(ids []int) catalog.MediaQueryBuilder {
	arr := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		arr[i] = int64(id)
	}
	q.wheres = append(q.wheres, fmt.Sprintf(
		`EXISTS (SELECT 1 FROM media_keywords mk WHERE mk.media_id = m.id AND mk.keyword_id = ANY(%s))`, q.param(arr)))
	return q
}

func (q *mediaQuery) WhereGenre(name string) catalog.MediaQueryBuilder {
	q.wheres = append(q.wheres, fmt.Sprintf(
		`EXISTS (SELECT 1 FROM media_genres mg JOIN genres g ON g.id = mg.genre_id WHERE mg.media_id = m.id AND g.name = %s)`,
		q.param(name)))
	return q
}

func (q *mediaQuery) WhereWatchedBy(userID string, wt models.WatchType) catalog.MediaQueryBuilder {
	user := q.param(userID)
	kind := q.param(int(wt))
	q.wheres = append(q.wheres, fmt.Sprintf(
		`EXISTS (SELECT 1 FROM media_watchers mw WHERE mw.media_id = m.id AND mw.user_id = %s AND mw.watch_type = %s)`,
		user, kind))
	return q
}

func (q *mediaQuery) WhereWatchedByOtherThan(userID string) catalog.MediaQueryBuilder {
	q.wheres = append(q.wheres, fmt.Sprintf(
		`EXISTS (SELECT 1 FROM media_watchers mw WHERE mw.media_id = m.id AND mw.user_id <> %s)`, q.param(userID)))
	return q
}

// WhereTitleContains is a case-sensitive substring match; strpos avoids LIKE
// wildcard escaping.
func (q *mediaQuery) WhereTitleContains(s string) catalog.MediaQueryBuilder {
	q.wheres = append(q.wheres, fmt.Sprintf(`strpos(m.title, %s) > 0`, q.param(s)))
	return q
}

func (q *mediaQuery) OrderBy(key string) catalog.MediaQueryBuilder {
	q.sort = key
	return q
}

func (q *mediaQuery) whereSQL() string {
	if len(q.wheres) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.wheres, " AND ")
}

// orderSQL maps a sort key to ORDER BY. Missing ratings and dates go last in
// both directions and id breaks ties.
func orderSQL(key string) string {
	dir := "ASC"
	if strings.HasSuffix(key, "-desc") {
		dir = "DESC"
	}

	var col string
	switch strings.TrimSuffix(key, "-desc") {
	case models.SortPopularity:
		col = "(SELECT COUNT(*) FROM media_watchers w WHERE w.media_id = m.id)"
	case models.SortRating:
		col = "rating"
	case models.SortDate:
		col = "m.release_date"
	default:
		col, dir = "m.title", "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, m.id ASC", col, dir)
}

func (q *mediaQuery) countSQL() string {
	return `SELECT COUNT(*) FROM media m` + q.whereSQL()
}

func (q *mediaQuery) fetchSQL() string {
	p := len(q.args)
	return `SELECT ` + summaryColumns + ` FROM media m` + q.whereSQL() + orderSQL(q.sort) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, p+1, p+2)
}

func (q *mediaQuery) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, q.countSQL(), q.args...).Scan(&n)
	return n, err
}

func (q *mediaQuery) Fetch(ctx context.Context, offset, limit int) ([]models.MediaSummary, error) {
	args := append(append([]interface{}{}, q.args...), limit, offset)
	rows, err := q.db.QueryContext(ctx, q.fetchSQL(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.MediaSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
