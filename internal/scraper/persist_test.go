package scraper

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charthub/internal/catalog"
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

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := catalog.NewRepo(db)

	year := 1994
	rating := 9.7
	items := []models.ChartItem{
		{Rank: 1, ExternalID: "100", Title: "alpha", Year: &year, Rating: &rating,
			Genres: []string{"犯罪", "剧情"}, Countries: []string{"美国"}},
		{Rank: 2, ExternalID: "200", Title: "beta",
			Genres: []string{"剧情"}, Countries: []string{"日本"}},
	}

	first := Ingest(ctx, repo, items)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 0, first.Failed)

	second := Ingest(ctx, repo, items)
	assert.Equal(t, 2, second.Processed)
	assert.Equal(t, 0, second.Failed)

	total, err := repo.Count(ctx, catalog.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	var genreCount, linkCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM genres`).Scan(&genreCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movie_genres`).Scan(&linkCount))
	assert.Equal(t, 2, genreCount) // 犯罪, 剧情 shared across both runs
	assert.Equal(t, 3, linkCount)
}

func TestIngestSkipsBadEntries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := catalog.NewRepo(db)

	items := []models.ChartItem{
		{Rank: 1, ExternalID: "100", Title: "good"},
		{Rank: 2, ExternalID: "200", Title: "   "}, // unusable, skipped
		{Rank: 3, ExternalID: "300", Title: "also good"},
	}

	sum := Ingest(ctx, repo, items)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Failed)

	total, err := repo.Count(ctx, catalog.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestIngestRefreshesAttributes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := catalog.NewRepo(db)

	oldRating := 8.9
	Ingest(ctx, repo, []models.ChartItem{
		{Rank: 5, ExternalID: "42", Title: "old title", Rating: &oldRating},
	})

	newRating := 9.1
	Ingest(ctx, repo, []models.ChartItem{
		{Rank: 3, ExternalID: "42", Title: "new title", Rating: &newRating},
	})

	movies, err := repo.List(ctx, catalog.ListQuery{})
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "new title", movies[0].Title)
	assert.Equal(t, 3, movies[0].Rank)
	require.NotNil(t, movies[0].Rating)
	assert.InDelta(t, 9.1, *movies[0].Rating, 0.001)
}
