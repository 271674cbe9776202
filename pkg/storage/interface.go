package storage

import "time"

// VisitedEntry records the outcome of scraping one detail URL, kept so
// bulk re-runs can skip pages that were already harvested.
type VisitedEntry struct {
	ScrapedAt   time.Time `json:"scraped_at"`
	HadDeepLink bool      `json:"had_deep_link"`
}

// VisitedStore tracks which detail URLs have already been scraped across
// bulk runs. The orchestrator's in-memory jobs never consult it; it exists
// purely for the resumable bulk CLI path.
type VisitedStore interface {
	// MarkScraped records a detail URL as scraped. Returns true if the URL
	// was not previously recorded.
	MarkScraped(normalizedURL string, entry *VisitedEntry) (bool, error)
	// IsScraped reports whether a detail URL was already scraped.
	IsScraped(normalizedURL string) (bool, *VisitedEntry, error)
	// Count returns the number of recorded URLs.
	Count() int
	Close() error
}
