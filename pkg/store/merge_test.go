package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"base-scraper/pkg/models"
)

func rec(category models.HallCategory, level, seq int, deepLink string) models.ScrapedRecord {
	return models.ScrapedRecord{
		SourceURL:      "https://example.com/plans/x.html",
		Category:       category,
		Level:          level,
		LayoutType:     models.LayoutWar,
		SequenceNumber: seq,
		DeepLink:       deepLink,
		ScrapedAt:      time.Now().UTC(),
	}
}

func TestMerge_DedupByDeepLink_LastWins(t *testing.T) {
	old := rec(models.CategoryMainHall, 12, 1, "link-a")
	old.Title = "old title"
	fresh := rec(models.CategoryMainHall, 12, 1, "link-a")
	fresh.Title = "fresh title"

	merged := Merge([]models.ScrapedRecord{old}, []models.ScrapedRecord{fresh})
	require.Len(t, merged, 1)
	assert.Equal(t, "fresh title", merged[0].Title, "the fresher scrape replaces the record wholesale")
}

func TestMerge_DropsRecordsWithoutDeepLink(t *testing.T) {
	merged := Merge(
		[]models.ScrapedRecord{rec(models.CategoryMainHall, 12, 1, "")},
		[]models.ScrapedRecord{rec(models.CategoryMainHall, 12, 2, ""), rec(models.CategoryMainHall, 12, 3, "link-c")},
	)
	require.Len(t, merged, 1)
	assert.Equal(t, "link-c", merged[0].DeepLink)
}

func TestMerge_Ordering(t *testing.T) {
	merged := Merge(nil, []models.ScrapedRecord{
		rec(models.CategoryBuilderHall, 9, 5, "b9-5"),
		rec(models.CategoryMainHall, 11, 2, "t11-2"),
		rec(models.CategoryMainHall, 12, 1, "t12-1"),
		rec(models.CategoryMainHall, 12, 7, "t12-7"),
		rec(models.CategoryBuilderHall, 10, 1, "b10-1"),
	})

	links := make([]string, len(merged))
	for i, r := range merged {
		links[i] = r.DeepLink
	}
	// Main hall first, then level descending, then sequence descending
	assert.Equal(t, []string{"t12-7", "t12-1", "t11-2", "b10-1", "b9-5"}, links)
}

func TestMerge_Idempotent(t *testing.T) {
	batch := []models.ScrapedRecord{
		rec(models.CategoryMainHall, 12, 1, "link-a"),
		rec(models.CategoryMainHall, 12, 2, "link-b"),
	}

	once := Merge(nil, batch)
	twice := Merge(once, batch)
	assert.Equal(t, once, twice, "re-merging the same batch must not change the store")
}

func TestMerge_EmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))

	existing := []models.ScrapedRecord{rec(models.CategoryMainHall, 12, 1, "link-a")}
	merged := Merge(existing, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "link-a", merged[0].DeepLink)
}
