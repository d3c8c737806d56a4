package scraper

import (
	"context"
	"log"
	"time"

	"charthub/internal/catalog"
	"charthub/pkg/models"
)

// IngestSummary reports how a batch fared. Failed counts entries that were
// skipped, not entries that aborted the run.
type IngestSummary struct {
	Processed int
	Failed    int
}

// Ingest writes a deduplicated chart batch into the catalog: one upsert per
// entry, then genre and country mappings. A bad entry is logged and skipped
// so the rest of the batch still lands.
func Ingest(ctx context.Context, repo *catalog.Repo, items []models.ChartItem) IngestSummary {
	var sum IngestSummary
	now := time.Now().UTC()

	for _, it := range items {
		key := NaturalKey(it)

		id, err := repo.UpsertMovie(ctx, key, it, now)
		if err != nil {
			log.Printf("[scraper] skip %q: %v", it.Title, err)
			sum.Failed++
			continue
		}

		if err := repo.MapDimensions(ctx, id, it.Genres, catalog.Genres); err != nil {
			log.Printf("[scraper] genres for %q (id=%d): %v", it.Title, id, err)
			sum.Failed++
			continue
		}
		if err := repo.MapDimensions(ctx, id, it.Countries, catalog.Countries); err != nil {
			log.Printf("[scraper] countries for %q (id=%d): %v", it.Title, id, err)
			sum.Failed++
			continue
		}

		sum.Processed++
	}
	return sum
}
