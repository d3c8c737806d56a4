package models

import "time"

// Movie is the persisted, canonical form of a chart entry.
//
// ID is the surrogate key assigned by the database. SourceKey is the
// natural key that identifies the same movie across crawl runs: the
// source's own id when the page provides one, otherwise a composite
// derived from the normalized title and year.
type Movie struct {
	ID            int64     `json:"id"`
	SourceKey     string    `json:"source_key"`
	Rank          int       `json:"rank"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title,omitempty"`
	Year          *int      `json:"year,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
	Votes         *int      `json:"votes,omitempty"`
	Director      string    `json:"director,omitempty"`
	URL           string    `json:"url,omitempty"`
	ScrapedAt     time.Time `json:"scraped_at"`

	// Loaded on detail reads, nil on list reads.
	Genres    []string `json:"genres,omitempty"`
	Countries []string `json:"countries,omitempty"`
}

// DimensionValue is one row of a lookup table (genres, countries) together
// with how many movies reference it.
type DimensionValue struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Movies int    `json:"movies"`
}
