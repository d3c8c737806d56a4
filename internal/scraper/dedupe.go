package scraper

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"charthub/pkg/models"
)

// unrankedSentinel makes items without a usable rank sort last, not first.
const unrankedSentinel = 1 << 20

// NaturalKey defines how chart entries are identified across pages and
// crawl runs: the source's own id when present, otherwise a composite of
// the normalized title and year.
func NaturalKey(it models.ChartItem) string {
	if id := strings.TrimSpace(it.ExternalID); id != "" {
		return id
	}
	year := 0
	if it.Year != nil {
		year = *it.Year
	}
	return fmt.Sprintf("%s|%d", normalizeTitle(it.Title), year)
}

// normalizeTitle converts a title to a canonical form: lowercase, with
// every run of non-letter/digit characters collapsed to a single space.
func normalizeTitle(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Dedupe collapses a crawl batch down to one entry per natural key.
// The first occurrence wins outright; later duplicates (overlapping page
// ranges, re-listed entries) are dropped without merging. The result is
// sorted by declared rank, missing ranks last, and truncated to limit.
// Pure function, no I/O.
func Dedupe(items []models.ChartItem, limit int) []models.ChartItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]models.ChartItem, 0, len(items))

	for _, it := range items {
		key := NaturalKey(it)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return sortRank(out[i]) < sortRank(out[j])
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortRank(it models.ChartItem) int {
	if it.Rank <= 0 {
		return unrankedSentinel
	}
	return it.Rank
}
