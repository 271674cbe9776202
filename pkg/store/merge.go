package store

import (
	"sort"

	"base-scraper/pkg/models"
)

// Merge unions newRecords into existing, deduplicating by deep link.
// A new record with the same deep link as an existing one replaces it
// entirely (fresher scrape wins; no field-level merge). Records without a
// deep link are never admitted; they carry no actionable payload.
//
// The result is sorted deterministically: main hall before builder hall,
// then level descending, then sequence number descending. The ordering is
// a presentation convenience for consumers of the persisted file.
func Merge(existing, newRecords []models.ScrapedRecord) []models.ScrapedRecord {
	byLink := make(map[string]models.ScrapedRecord, len(existing)+len(newRecords))
	order := make([]string, 0, len(existing)+len(newRecords))

	admit := func(rec models.ScrapedRecord) {
		if !rec.HasDeepLink() {
			return
		}
		if _, exists := byLink[rec.DeepLink]; !exists {
			order = append(order, rec.DeepLink)
		}
		byLink[rec.DeepLink] = rec
	}
	for _, rec := range existing {
		admit(rec)
	}
	for _, rec := range newRecords {
		admit(rec)
	}

	merged := make([]models.ScrapedRecord, 0, len(byLink))
	for _, link := range order {
		merged = append(merged, byLink[link])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Category != b.Category {
			return a.Category == models.CategoryMainHall
		}
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		return a.SequenceNumber > b.SequenceNumber
	})

	return merged
}
