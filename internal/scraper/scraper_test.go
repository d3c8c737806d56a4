package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves canned pages keyed by URL and records every request.
type stubFetcher struct {
	pages    map[string][]byte
	requests []string
	failOn   string
}

func (f *stubFetcher) Fetch(_ context.Context, pageURL string) ([]byte, error) {
	f.requests = append(f.requests, pageURL)
	if f.failOn != "" && pageURL == f.failOn {
		return nil, errors.New("boom")
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no such page: %s", pageURL)
	}
	return page, nil
}

func chartPage(entries ...string) []byte {
	blob := `{"items":[`
	for i, e := range entries {
		if i > 0 {
			blob += ","
		}
		blob += e
	}
	blob += `]}`
	return statePage(blob)
}

func TestCrawlTopPaginates(t *testing.T) {
	base := "https://example.com/chart"
	fetcher := &stubFetcher{pages: map[string][]byte{
		base: chartPage(
			`{"word":"one","id":"1"}`,
			`{"word":"two","id":"2"}`,
		),
		base + "?start=2": chartPage(
			`{"word":"two","id":"2"}`, // page overlap, deduped
			`{"word":"three","id":"3"}`,
		),
	}}

	c := NewCrawler(fetcher, base)
	c.PageSize = 2
	c.Delay = 0
	c.MinStructured = 1

	items, err := c.CrawlTop(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{base, base + "?start=2"}, fetcher.requests)

	require.Len(t, items, 3)
	assert.Equal(t, "one", items[0].Title)
	assert.Equal(t, "two", items[1].Title)
	assert.Equal(t, "three", items[2].Title)
}

func TestCrawlTopKeepsQueryString(t *testing.T) {
	base := "https://example.com/chart?type=movie"
	fetcher := &stubFetcher{pages: map[string][]byte{
		base:             chartPage(`{"word":"a","id":"1"}`),
		base + "&start=1": chartPage(`{"word":"b","id":"2"}`),
	}}

	c := NewCrawler(fetcher, base)
	c.PageSize = 1
	c.Delay = 0
	c.MinStructured = 1

	_, err := c.CrawlTop(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{base, base + "&start=1"}, fetcher.requests)
}

func TestCrawlTopAbortsOnFetchError(t *testing.T) {
	base := "https://example.com/chart"
	fetcher := &stubFetcher{
		pages:  map[string][]byte{base: chartPage(`{"word":"a","id":"1"}`)},
		failOn: base + "?start=1",
	}

	c := NewCrawler(fetcher, base)
	c.PageSize = 1
	c.Delay = 0

	items, err := c.CrawlTop(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2/3")
	assert.Nil(t, items)
}

func TestCrawlTopTruncatesToN(t *testing.T) {
	base := "https://example.com/chart"
	fetcher := &stubFetcher{pages: map[string][]byte{
		base: chartPage(
			`{"word":"a","id":"1"}`,
			`{"word":"b","id":"2"}`,
			`{"word":"c","id":"3"}`,
		),
	}}

	c := NewCrawler(fetcher, base)
	c.PageSize = 3
	c.Delay = 0
	c.MinStructured = 1

	items, err := c.CrawlTop(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCrawlTopZero(t *testing.T) {
	c := NewCrawler(&stubFetcher{}, "https://example.com")
	items, err := c.CrawlTop(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}
