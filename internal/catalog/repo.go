package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"charthub/pkg/database"
	"charthub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

// Dimension describes one lookup table and the association table linking it
// to movies. The two instances below are the only ones; table names never
// come from user input.
type Dimension struct {
	Table     string
	JoinTable string
	FKColumn  string
}

var (
	Genres    = Dimension{Table: "genres", JoinTable: "movie_genres", FKColumn: "genre_id"}
	Countries = Dimension{Table: "countries", JoinTable: "movie_countries", FKColumn: "country_id"}
)

// UpsertMovie writes one chart entry under its natural key as a single
// atomic conflict-resolving statement: insert on first sighting, full
// attribute overwrite on re-sighting, the same surrogate id returned either
// way. A uniqueness violation on anything other than source_key is a real
// conflict and propagates to the caller.
func (r *Repo) UpsertMovie(ctx context.Context, sourceKey string, it models.ChartItem, scrapedAt time.Time) (int64, error) {
	if strings.TrimSpace(sourceKey) == "" {
		return 0, fmt.Errorf("upsert movie: empty source key")
	}
	if strings.TrimSpace(it.Title) == "" {
		return 0, fmt.Errorf("upsert movie %q: empty title", sourceKey)
	}

	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO movies
			(source_key, rank_no, title, original_title, year, rating, votes, director, url, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_key) DO UPDATE SET
			rank_no = excluded.rank_no,
			title = excluded.title,
			original_title = excluded.original_title,
			year = excluded.year,
			rating = excluded.rating,
			votes = excluded.votes,
			director = excluded.director,
			url = excluded.url,
			scraped_at = excluded.scraped_at
		RETURNING id
	`,
		sourceKey,
		nullIfZero(it.Rank),
		it.Title,
		nullIfEmpty(it.OriginalTitle),
		nullIntPtr(it.Year),
		nullFloatPtr(it.Rating),
		nullIntPtr(it.Votes),
		nullIfEmpty(it.Director),
		nullIfEmpty(it.URL),
		scrapedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert movie %q: %w", sourceKey, err)
	}
	return id, nil
}

// MapDimensions ensures a dimension row exists for every name and links it
// to the movie. Both steps are race-safe without application locks: the
// dimension insert resolves a name conflict with an identity-preserving
// no-op update so RETURNING yields the surviving id in one round trip, and
// the association insert silently no-ops on an existing pair. An empty
// name list is a legal no-op.
func (r *Repo) MapDimensions(ctx context.Context, movieID int64, names []string, dim Dimension) error {
	ensureSQL := fmt.Sprintf(`
		INSERT INTO %s (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id
	`, dim.Table)
	linkSQL := fmt.Sprintf(`
		INSERT INTO %s (movie_id, %s) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, dim.JoinTable, dim.FKColumn)

	for _, name := range normalizeNames(names) {
		var dimID int64
		if err := r.DB.QueryRowContext(ctx, ensureSQL, name).Scan(&dimID); err != nil {
			return fmt.Errorf("ensure %s %q: %w", dim.Table, name, err)
		}
		if _, err := r.DB.ExecContext(ctx, linkSQL, movieID, dimID); err != nil {
			return fmt.Errorf("link %s %q to movie %d: %w", dim.Table, name, movieID, err)
		}
	}
	return nil
}

// normalizeNames trims, drops empties, and removes duplicates while
// preserving first-seen order.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Reconcile removes historical natural-key duplicates: for every group of
// movies sharing a source_key, the row with the smallest surrogate id (the
// earliest-seen) survives and the rest are deleted in bounded chunks.
// A table already satisfying the invariant loses nothing, so a second run
// always removes zero.
func (r *Repo) Reconcile(ctx context.Context, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT DISTINCT m1.id
		FROM movies m1
		JOIN movies m2
		  ON m1.source_key = m2.source_key AND m1.id > m2.id
	`)
	if err != nil {
		return 0, fmt.Errorf("find duplicates: %w", err)
	}
	defer rows.Close()

	var losers []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan duplicate id: %w", err)
		}
		losers = append(losers, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("duplicate rows: %w", err)
	}

	var removed int64
	for start := 0; start < len(losers); start += chunkSize {
		batch := losers[start:min(start+chunkSize, len(losers))]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		res, err := r.DB.ExecContext(ctx,
			"DELETE FROM movies WHERE id IN ("+placeholders+")", args...)
		if err != nil {
			return removed, fmt.Errorf("delete duplicates: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*models.Movie, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, source_key, rank_no, title, original_title, year, rating, votes, director, url, scraped_at
		FROM movies
		WHERE id = ?
	`, id)

	m, err := scanMovie(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get movie %d: %w", id, err)
	}

	if m.Genres, err = r.dimensionNames(ctx, id, Genres); err != nil {
		return nil, err
	}
	if m.Countries, err = r.dimensionNames(ctx, id, Countries); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repo) dimensionNames(ctx context.Context, movieID int64, dim Dimension) ([]string, error) {
	q := fmt.Sprintf(`
		SELECT d.name
		FROM %s d
		JOIN %s j ON j.%s = d.id
		WHERE j.movie_id = ?
		ORDER BY d.name
	`, dim.Table, dim.JoinTable, dim.FKColumn)

	rows, err := r.DB.QueryContext(ctx, q, movieID)
	if err != nil {
		return nil, fmt.Errorf("load %s for movie %d: %w", dim.Table, movieID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan %s name: %w", dim.Table, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type ListQuery struct {
	Q       string // keyword search in title/director
	Genre   string
	Country string
	Year    int
	Order   string // "rank" (default), "id", "rating", "time"
	Limit   int
	Offset  int
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Movie, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	out := make([]models.Movie, 0, q.Limit)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie row: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("movie rows: %w", err)
	}
	return out, nil
}

// buildListSQL builds either the COUNT(*) or the SELECT list variant of the
// same filtered query.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	baseSelect := `
		SELECT id, source_key, rank_no, title, original_title, year, rating, votes, director, url, scraped_at
		FROM movies
	`
	if countOnly {
		baseSelect = `SELECT COUNT(*) FROM movies`
	}

	var where []string
	var args []any

	if strings.TrimSpace(q.Q) != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(director) LIKE ?)")
		kw := "%" + strings.ToLower(strings.TrimSpace(q.Q)) + "%"
		args = append(args, kw, kw)
	}
	if q.Year > 0 {
		where = append(where, "year = ?")
		args = append(args, q.Year)
	}
	if g := strings.TrimSpace(q.Genre); g != "" {
		where = append(where, `id IN (
			SELECT j.movie_id FROM movie_genres j
			JOIN genres d ON d.id = j.genre_id
			WHERE d.name = ?)`)
		args = append(args, g)
	}
	if c := strings.TrimSpace(q.Country); c != "" {
		where = append(where, `id IN (
			SELECT j.movie_id FROM movie_countries j
			JOIN countries d ON d.id = j.country_id
			WHERE d.name = ?)`)
		args = append(args, c)
	}

	sqlStr := baseSelect
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		switch q.Order {
		case "id":
			sqlStr += " ORDER BY id ASC"
		case "rating":
			sqlStr += " ORDER BY rating DESC"
		case "time":
			sqlStr += " ORDER BY scraped_at DESC"
		default: // rank, unranked rows last
			sqlStr += " ORDER BY rank_no IS NULL, rank_no ASC"
		}

		limit := q.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		sqlStr += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

// ListDimensions returns every value of one dimension with its usage count.
func (r *Repo) ListDimensions(ctx context.Context, dim Dimension) ([]models.DimensionValue, error) {
	q := fmt.Sprintf(`
		SELECT d.id, d.name, COUNT(j.movie_id)
		FROM %s d
		LEFT JOIN %s j ON j.%s = d.id
		GROUP BY d.id, d.name
		ORDER BY d.name
	`, dim.Table, dim.JoinTable, dim.FKColumn)

	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dim.Table, err)
	}
	defer rows.Close()

	var out []models.DimensionValue
	for rows.Next() {
		var v models.DimensionValue
		if err := rows.Scan(&v.ID, &v.Name, &v.Movies); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", dim.Table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Delete removes one movie; association rows go with it via cascade.
func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete movie %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *Repo) UpdateTitle(ctx context.Context, id int64, title string) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("update title: empty title")
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE movies SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return 0, fmt.Errorf("update title: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repo) UpdateRating(ctx context.Context, id int64, rating float64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE movies SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return 0, fmt.Errorf("update rating: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Reindex re-sequences surrogate ids to be contiguous in creation order,
// remapping association rows in the same transaction. Ids are staged
// negative first so the remap never collides with a not-yet-updated row.
func (r *Repo) Reindex(ctx context.Context) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		stmts := []string{
			`PRAGMA defer_foreign_keys = ON`,
			`CREATE TEMP TABLE idmap AS
				SELECT id AS old_id, ROW_NUMBER() OVER (ORDER BY id) AS new_id FROM movies`,
			`UPDATE movie_genres SET movie_id = -(SELECT new_id FROM idmap WHERE old_id = movie_id)`,
			`UPDATE movie_genres SET movie_id = -movie_id WHERE movie_id < 0`,
			`UPDATE movie_countries SET movie_id = -(SELECT new_id FROM idmap WHERE old_id = movie_id)`,
			`UPDATE movie_countries SET movie_id = -movie_id WHERE movie_id < 0`,
			`UPDATE movies SET id = -(SELECT new_id FROM idmap WHERE old_id = id)`,
			`UPDATE movies SET id = -id WHERE id < 0`,
			`UPDATE sqlite_sequence SET seq = (SELECT IFNULL(MAX(id), 0) FROM movies) WHERE name = 'movies'`,
			`DROP TABLE idmap`,
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
		}
		return nil
	})
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMovie(s scanner) (*models.Movie, error) {
	var (
		m             models.Movie
		rank          sql.NullInt64
		originalTitle sql.NullString
		year          sql.NullInt64
		rating        sql.NullFloat64
		votes         sql.NullInt64
		director      sql.NullString
		pageURL       sql.NullString
	)

	if err := s.Scan(
		&m.ID, &m.SourceKey, &rank, &m.Title, &originalTitle,
		&year, &rating, &votes, &director, &pageURL, &m.ScrapedAt,
	); err != nil {
		return nil, err
	}

	if rank.Valid {
		m.Rank = int(rank.Int64)
	}
	m.OriginalTitle = originalTitle.String
	if year.Valid {
		y := int(year.Int64)
		m.Year = &y
	}
	if rating.Valid {
		f := rating.Float64
		m.Rating = &f
	}
	if votes.Valid {
		v := int(votes.Int64)
		m.Votes = &v
	}
	m.Director = director.String
	m.URL = pageURL.String
	return &m, nil
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullIntPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloatPtr(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
