package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"charthub/internal/catalog"
	"charthub/internal/scraper"
	"charthub/pkg/database"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:9000/board", "chart page to crawl")
	top := flag.Int("top", 100, "how many entries to keep after dedup")
	pageSize := flag.Int("page-size", 25, "entries per page")
	delay := flag.Duration("delay", 1850*time.Millisecond, "pause between page fetches")
	minStructured := flag.Int("min-structured", 10, "minimum embedded-state entries before the card fallback kicks in")
	printOnly := flag.Bool("print-only", false, "print extracted entries as JSON instead of writing the database")
	flag.Parse()

	runID := uuid.NewString()
	log.Printf("[scraper] run %s: %s top=%d", runID, *baseURL, *top)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fetcher := scraper.NewHTTPFetcher()
	fetcher.Referer = *baseURL

	crawler := &scraper.Crawler{
		Fetcher:       fetcher,
		BaseURL:       *baseURL,
		PageSize:      *pageSize,
		Delay:         *delay,
		MinStructured: *minStructured,
	}

	items, err := crawler.CrawlTop(ctx, *top)
	if err != nil {
		log.Fatalf("[scraper] run %s failed: %v", runID, err)
	}
	log.Printf("[scraper] run %s: %d entries after dedup", runID, len(items))

	if *printOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			log.Fatalf("[scraper] encode: %v", err)
		}
		return
	}

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	sum := scraper.Ingest(ctx, catalog.NewRepo(db), items)
	log.Printf("[scraper] run %s done: processed=%d failed=%d", runID, sum.Processed, sum.Failed)
}
