package scraper

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"charthub/pkg/models"
)

// stateBlobRe locates the JSON state object that board pages inject into
// their markup for client-side hydration.
var stateBlobRe = regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\})\s*;\s*</script>`)

// Candidate field names inside a structured entry, in priority order.
// Different boards use different names for the same thing.
var (
	titleFields = []string{"word", "query", "title", "content", "name"}
	urlFields   = []string{"url", "appUrl", "redirectUrl", "link"}
	idFields    = []string{"id", "subjectId", "sid"}
)

// ParseChart extracts chart entries from a raw listing page.
//
// The structured strategy (embedded JSON) runs first. When it fails to
// parse or yields fewer than min entries, the HTML card fallback replaces
// its result entirely. A page neither strategy can read produces an empty
// slice, never an error.
func ParseChart(doc []byte, baseURL string, min int) []models.ChartItem {
	items := parseEmbeddedState(doc)
	if len(items) < min {
		items = parseCards(doc, baseURL)
	}
	return items
}

// parseEmbeddedState pulls the injected state blob out of the page and maps
// its item list into chart entries. Any malformed blob is treated as "no
// structured data" so the caller falls through to the card scan.
func parseEmbeddedState(doc []byte) []models.ChartItem {
	m := stateBlobRe.FindSubmatch(doc)
	if m == nil {
		return nil
	}

	var root any
	if err := json.Unmarshal(m[1], &root); err != nil {
		return nil
	}

	raw := digItems(root)
	if len(raw) == 0 {
		return nil
	}

	items := make([]models.ChartItem, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		title := strings.TrimSpace(firstString(obj, titleFields))
		if title == "" {
			continue
		}
		items = append(items, models.ChartItem{
			Rank:       i + 1, // position in the list, dropped entries still consume a slot
			Title:      title,
			URL:        strings.TrimSpace(firstString(obj, urlFields)),
			ExternalID: strings.TrimSpace(firstString(obj, idFields)),
		})
	}
	return items
}

// digItems finds the item list inside an arbitrary decoded JSON tree:
// a list under a key literally named "items" wins; otherwise the first
// array found depth-first. Map keys are visited in sorted order so the
// result does not depend on Go's map iteration order.
func digItems(v any) []any {
	if found := digKeyedItems(v); found != nil {
		return found
	}
	return digFirstList(v)
}

func digKeyedItems(v any) []any {
	switch t := v.(type) {
	case map[string]any:
		if list, ok := t["items"].([]any); ok {
			return list
		}
		for _, k := range sortedKeys(t) {
			if found := digKeyedItems(t[k]); found != nil {
				return found
			}
		}
	case []any:
		for _, e := range t {
			if found := digKeyedItems(e); found != nil {
				return found
			}
		}
	}
	return nil
}

func digFirstList(v any) []any {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			if list, ok := t[k].([]any); ok {
				return list
			}
		}
		for _, k := range sortedKeys(t) {
			if found := digFirstList(t[k]); found != nil {
				return found
			}
		}
	case []any:
		return t
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstString(obj map[string]any, fields []string) string {
	for _, f := range fields {
		if s, ok := obj[f].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
