package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"charthub/pkg/models"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Fetcher is implemented by anything that can retrieve one listing page.
// Implementations own their transport policy; the crawler never retries.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// HTTPFetcher fetches pages over plain HTTP with browser-like headers.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	Referer   string
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 15 * time.Second},
		UserAgent: defaultUserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	if f.Referer != "" {
		req.Header.Set("Referer", f.Referer)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}
	return body, nil
}

// Crawler drives a sequential paginated crawl of one chart. Pages are
// fetched one at a time with a blocking pacing delay in between; a failed
// page fetch aborts the whole run (there is no partial-page retry).
type Crawler struct {
	Fetcher Fetcher
	BaseURL string // listing URL; the page offset is appended as start=N

	PageSize      int           // entries per page
	Delay         time.Duration // pause between page fetches
	MinStructured int           // structured yield below this triggers the card fallback
}

func NewCrawler(f Fetcher, baseURL string) *Crawler {
	return &Crawler{
		Fetcher:       f,
		BaseURL:       baseURL,
		PageSize:      25,
		Delay:         1850 * time.Millisecond,
		MinStructured: 10,
	}
}

// CrawlTop fetches enough pages to cover the first n chart entries,
// extracts each page, and returns the deduplicated batch sorted by rank
// and truncated to n.
func (c *Crawler) CrawlTop(ctx context.Context, n int) ([]models.ChartItem, error) {
	if n <= 0 {
		return nil, nil
	}
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	pages := (n + pageSize - 1) / pageSize

	var all []models.ChartItem
	for i := 0; i < pages; i++ {
		pageURL := c.pageURL(i * pageSize)

		doc, err := c.Fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d/%d: %w", i+1, pages, err)
		}

		page := ParseChart(doc, pageURL, c.MinStructured)
		log.Printf("[scraper] page %d/%d: %d items", i+1, pages, len(page))
		all = append(all, page...)

		if i < pages-1 && c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
	}

	return Dedupe(all, n), nil
}

func (c *Crawler) pageURL(start int) string {
	if start == 0 {
		return c.BaseURL
	}
	sep := "?"
	if strings.Contains(c.BaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sstart=%d", c.BaseURL, sep, start)
}
