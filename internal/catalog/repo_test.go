package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charthub/pkg/database"
	"charthub/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func intp(n int) *int { return &n }

func floatp(f float64) *float64 { return &f }

func TestUpsertMovieConverges(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	id1, err := repo.UpsertMovie(ctx, "42", models.ChartItem{
		Rank: 5, Title: "X", Year: intp(2001), Rating: floatp(8.2),
	}, now)
	require.NoError(t, err)

	id2, err := repo.UpsertMovie(ctx, "42", models.ChartItem{
		Rank: 2, Title: "X2", Year: intp(2002),
	}, now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	m, err := repo.GetByID(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "X2", m.Title)
	assert.Equal(t, 2, m.Rank)
	require.NotNil(t, m.Year)
	assert.Equal(t, 2002, *m.Year)
	assert.Nil(t, m.Rating) // overwritten with the new entry's absence

	total, err := repo.Count(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestUpsertMovieReturnsUsableID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)
	now := time.Now().UTC()

	// surrogate ids come back scanned and monotonic
	for i, key := range []string{"a", "b", "c"} {
		id, err := repo.UpsertMovie(ctx, key, models.ChartItem{Title: key}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}

	// the pool has a single connection: this query only succeeds if the
	// upserts released theirs
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestUpsertMovieRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	_, err := repo.UpsertMovie(ctx, "", models.ChartItem{Title: "x"}, now)
	assert.Error(t, err)

	_, err = repo.UpsertMovie(ctx, "k", models.ChartItem{Title: "   "}, now)
	assert.Error(t, err)
}

func TestMapDimensionsConverges(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	id1, err := repo.UpsertMovie(ctx, "a", models.ChartItem{Title: "a"}, now)
	require.NoError(t, err)
	id2, err := repo.UpsertMovie(ctx, "b", models.ChartItem{Title: "b"}, now)
	require.NoError(t, err)

	// same genre name from two movies, with noise in the input
	require.NoError(t, repo.MapDimensions(ctx, id1, []string{" 剧情 ", "剧情", ""}, Genres))
	require.NoError(t, repo.MapDimensions(ctx, id2, []string{"剧情"}, Genres))

	// remapping the same pair is a no-op
	require.NoError(t, repo.MapDimensions(ctx, id1, []string{"剧情"}, Genres))

	values, err := repo.ListDimensions(ctx, Genres)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "剧情", values[0].Name)
	assert.Equal(t, 2, values[0].Movies)

	// empty list is a legal no-op
	require.NoError(t, repo.MapDimensions(ctx, id1, nil, Countries))
}

func TestMapDimensionsKeepsExistingID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)
	now := time.Now().UTC()

	id, err := repo.UpsertMovie(ctx, "a", models.ChartItem{Title: "a"}, now)
	require.NoError(t, err)

	require.NoError(t, repo.MapDimensions(ctx, id, []string{"美国"}, Countries))
	var first int64
	require.NoError(t, db.QueryRow(`SELECT id FROM countries WHERE name = '美国'`).Scan(&first))

	require.NoError(t, repo.MapDimensions(ctx, id, []string{"美国"}, Countries))
	var second int64
	require.NoError(t, db.QueryRow(`SELECT id FROM countries WHERE name = '美国'`).Scan(&second))

	assert.Equal(t, first, second)
}

// legacyDuplicates drops the uniqueness index and plants natural-key
// duplicates the way a table predating the index would hold them.
func legacyDuplicates(t *testing.T, db *sql.DB, keys ...string) {
	t.Helper()
	_, err := db.Exec(`DROP INDEX idx_movies_source_key`)
	require.NoError(t, err)

	for _, k := range keys {
		_, err := db.Exec(`
			INSERT INTO movies (source_key, title, scraped_at) VALUES (?, ?, ?)
		`, k, "title for "+k, time.Now().UTC())
		require.NoError(t, err)
	}
}

func TestReconcileKeepsSmallestID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)

	legacyDuplicates(t, db, "dup", "dup", "dup", "solo", "other", "other")

	removed, err := repo.Reconcile(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	rows, err := db.Query(`SELECT id, source_key FROM movies ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var ids []int64
	var seenKeys []string
	for rows.Next() {
		var id int64
		var key string
		require.NoError(t, rows.Scan(&id, &key))
		ids = append(ids, id)
		seenKeys = append(seenKeys, key)
	}
	require.NoError(t, rows.Err())

	// the first-inserted row of each group survives
	assert.Equal(t, []int64{1, 4, 5}, ids)
	assert.Equal(t, []string{"dup", "solo", "other"}, seenKeys)

	// a table already satisfying the invariant loses nothing
	removed, err = repo.Reconcile(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestReconcileChunks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)

	legacyDuplicates(t, db, "k", "k", "k", "k", "k")

	// chunk size 2 forces three delete batches
	removed, err := repo.Reconcile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movies`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestReconcileEmptyTable(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))

	removed, err := repo.Reconcile(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestDeleteCascadesAssociations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)
	now := time.Now().UTC()

	id, err := repo.UpsertMovie(ctx, "a", models.ChartItem{Title: "a"}, now)
	require.NoError(t, err)
	require.NoError(t, repo.MapDimensions(ctx, id, []string{"剧情"}, Genres))
	require.NoError(t, repo.MapDimensions(ctx, id, []string{"美国"}, Countries))

	ok, err := repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	var links int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movie_genres`).Scan(&links))
	assert.Zero(t, links)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movie_countries`).Scan(&links))
	assert.Zero(t, links)

	// dimension rows themselves stay
	values, err := repo.ListDimensions(ctx, Genres)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, 0, values[0].Movies)

	ok, err = repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	seed := []struct {
		key   string
		item  models.ChartItem
		genre string
	}{
		{"1", models.ChartItem{Rank: 3, Title: "gamma", Year: intp(1994), Rating: floatp(9.0), Director: "someone"}, "剧情"},
		{"2", models.ChartItem{Rank: 1, Title: "alpha", Year: intp(2001), Rating: floatp(8.0)}, "动画"},
		{"3", models.ChartItem{Rank: 0, Title: "unranked", Year: intp(1994), Rating: floatp(9.5)}, "剧情"},
	}
	for _, s := range seed {
		id, err := repo.UpsertMovie(ctx, s.key, s.item, now)
		require.NoError(t, err)
		require.NoError(t, repo.MapDimensions(ctx, id, []string{s.genre}, Genres))
	}

	// default rank order, unranked last
	movies, err := repo.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, movies, 3)
	assert.Equal(t, "alpha", movies[0].Title)
	assert.Equal(t, "gamma", movies[1].Title)
	assert.Equal(t, "unranked", movies[2].Title)

	// rating order
	movies, err = repo.List(ctx, ListQuery{Order: "rating"})
	require.NoError(t, err)
	assert.Equal(t, "unranked", movies[0].Title)

	// year filter
	total, err := repo.Count(ctx, ListQuery{Year: 1994})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// genre filter
	movies, err = repo.List(ctx, ListQuery{Genre: "动画"})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "alpha", movies[0].Title)

	// keyword search matches title and director, case-insensitive
	total, err = repo.Count(ctx, ListQuery{Q: "GAMMA"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	total, err = repo.Count(ctx, ListQuery{Q: "someone"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGetByIDLoadsDimensions(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	id, err := repo.UpsertMovie(ctx, "a", models.ChartItem{Title: "a"}, now)
	require.NoError(t, err)
	require.NoError(t, repo.MapDimensions(ctx, id, []string{"犯罪", "剧情"}, Genres))
	require.NoError(t, repo.MapDimensions(ctx, id, []string{"美国"}, Countries))

	m, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.ElementsMatch(t, []string{"犯罪", "剧情"}, m.Genres)
	assert.Equal(t, []string{"美国"}, m.Countries)

	missing, err := repo.GetByID(ctx, id+999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateTitleAndRating(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(openTestDB(t))
	now := time.Now().UTC()

	id, err := repo.UpsertMovie(ctx, "a", models.ChartItem{Title: "before"}, now)
	require.NoError(t, err)

	n, err := repo.UpdateTitle(ctx, id, "after")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateRating(ctx, id, 7.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.UpdateTitle(ctx, id+999, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.UpdateTitle(ctx, id, "  ")
	assert.Error(t, err)

	m, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "after", m.Title)
	require.NotNil(t, m.Rating)
	assert.InDelta(t, 7.5, *m.Rating, 0.001)
}

func TestReindexResequencesIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRepo(db)
	now := time.Now().UTC()

	var ids []int64
	for _, key := range []string{"a", "b", "c", "d"} {
		id, err := repo.UpsertMovie(ctx, key, models.ChartItem{Title: key}, now)
		require.NoError(t, err)
		require.NoError(t, repo.MapDimensions(ctx, id, []string{"剧情"}, Genres))
		ids = append(ids, id)
	}

	// punch holes in the sequence
	_, err := repo.Delete(ctx, ids[0])
	require.NoError(t, err)
	_, err = repo.Delete(ctx, ids[2])
	require.NoError(t, err)

	require.NoError(t, repo.Reindex(ctx))

	rows, err := db.Query(`SELECT id, source_key FROM movies ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var got []int64
	var keys []string
	for rows.Next() {
		var id int64
		var key string
		require.NoError(t, rows.Scan(&id, &key))
		got = append(got, id)
		keys = append(keys, key)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, []string{"b", "d"}, keys) // creation order preserved

	// associations followed their movies
	var links int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM movie_genres j JOIN movies m ON m.id = j.movie_id
	`).Scan(&links))
	assert.Equal(t, 2, links)

	// the next insert continues after the new maximum
	id, err := repo.UpsertMovie(ctx, "e", models.ChartItem{Title: "e"}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}
