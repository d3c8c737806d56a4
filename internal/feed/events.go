package feed

import "time"

const (
	EventReconciled = "catalog.reconciled"
	EventDeleted    = "catalog.deleted"
)

// Event is what admin consoles see on the feed when the catalog changes
// outside a normal crawl.
type Event struct {
	Type    string    `json:"type"`
	MovieID int64     `json:"movie_id,omitempty"`
	Title   string    `json:"title,omitempty"`
	Removed int64     `json:"removed,omitempty"`
	At      time.Time `json:"at"`
}

func Reconciled(removed int64) Event {
	return Event{Type: EventReconciled, Removed: removed, At: time.Now().UTC()}
}

func Deleted(id int64, title string) Event {
	return Event{Type: EventDeleted, MovieID: id, Title: title, At: time.Now().UTC()}
}
