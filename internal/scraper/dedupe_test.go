package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charthub/pkg/models"
)

func TestNaturalKey(t *testing.T) {
	year := 2001
	assert.Equal(t, "123", NaturalKey(models.ChartItem{ExternalID: "123", Title: "ignored"}))
	assert.Equal(t, "spirited away|2001", NaturalKey(models.ChartItem{Title: "Spirited Away", Year: &year}))
	assert.Equal(t, "spirited away|0", NaturalKey(models.ChartItem{Title: "Spirited Away"}))

	// punctuation and casing collapse to the same key
	a := NaturalKey(models.ChartItem{Title: "The Matrix: Reloaded", Year: &year})
	b := NaturalKey(models.ChartItem{Title: "the matrix — reloaded", Year: &year})
	assert.Equal(t, a, b)
}

func TestDedupeFirstWins(t *testing.T) {
	items := []models.ChartItem{
		{ExternalID: "K", Rank: 3, Title: "first sighting"},
		{ExternalID: "K", Rank: 1, Title: "second sighting"},
		{ExternalID: "K", Rank: 2, Title: "third sighting"},
	}

	out := Dedupe(items, 10)
	require.Len(t, out, 1)
	assert.Equal(t, "first sighting", out[0].Title)
	assert.Equal(t, 3, out[0].Rank)
}

func TestDedupeSortsByRankMissingLast(t *testing.T) {
	items := []models.ChartItem{
		{ExternalID: "c", Rank: 0, Title: "unranked"},
		{ExternalID: "a", Rank: 7, Title: "seven"},
		{ExternalID: "b", Rank: 2, Title: "two"},
	}

	out := Dedupe(items, 10)
	require.Len(t, out, 3)
	assert.Equal(t, "two", out[0].Title)
	assert.Equal(t, "seven", out[1].Title)
	assert.Equal(t, "unranked", out[2].Title)
}

func TestDedupeTruncatesToLimit(t *testing.T) {
	items := []models.ChartItem{
		{ExternalID: "a", Rank: 1, Title: "a"},
		{ExternalID: "b", Rank: 2, Title: "b"},
		{ExternalID: "c", Rank: 3, Title: "c"},
	}

	out := Dedupe(items, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Title)
	assert.Equal(t, "b", out[1].Title)
}

func TestDedupeTitleYearKey(t *testing.T) {
	y1, y2 := 2001, 2002
	items := []models.ChartItem{
		{Title: "X", Year: &y1, Rank: 1},
		{Title: "X", Year: &y2, Rank: 2}, // different year, different key
		{Title: "x!", Year: &y1, Rank: 3}, // normalizes to the first key
	}

	out := Dedupe(items, 10)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Rank)
	assert.Equal(t, 2, out[1].Rank)
}
