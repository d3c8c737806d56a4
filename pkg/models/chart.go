package models

// ChartItem is one candidate entry parsed out of a listing page. It only
// lives for the duration of a crawl run; persistence happens through the
// catalog after deduplication.
//
// Title is the only required field. Everything the page may or may not
// carry is either a pointer (numeric fields, nil = absent) or a zero value
// (strings, slices).
type ChartItem struct {
	Rank          int      `json:"rank"`                     // 1-based position on the chart, 0 = unknown
	ExternalID    string   `json:"external_id,omitempty"`    // source-assigned id, e.g. the subject id in a detail URL
	Title         string   `json:"title"`                    // required; items without one are dropped
	OriginalTitle string   `json:"original_title,omitempty"` // untranslated title if the card shows one
	Year          *int     `json:"year,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Votes         *int     `json:"votes,omitempty"`
	Director      string   `json:"director,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	URL           string   `json:"url,omitempty"`
}
