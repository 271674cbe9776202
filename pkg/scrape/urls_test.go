package scrape

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"base-scraper/pkg/models"
	"base-scraper/pkg/utils"
)

func TestParseDetailURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want DetailURLInfo
	}{
		{
			name: "main hall war",
			url:  "https://example.com/plans/th_12/war_3.html",
			want: DetailURLInfo{models.CategoryMainHall, 12, models.LayoutWar, 3},
		},
		{
			name: "builder hall trophy via push synonym",
			url:  "https://example.com/plans/bh_9/push_41.html",
			want: DetailURLInfo{models.CategoryBuilderHall, 9, models.LayoutTrophy, 41},
		},
		{
			name: "defence synonym canonicalized",
			url:  "https://example.com/plans/th_10/defence_7.html",
			want: DetailURLInfo{models.CategoryMainHall, 10, models.LayoutDefense, 7},
		},
		{
			name: "farming synonym canonicalized",
			url:  "https://example.com/plans/th_8/farming_2.html",
			want: DetailURLInfo{models.CategoryMainHall, 8, models.LayoutFarm, 2},
		},
		{
			name: "unknown layout token kept as unknown",
			url:  "https://example.com/plans/th_8/progress_5.html",
			want: DetailURLInfo{models.CategoryMainHall, 8, models.LayoutUnknown, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseDetailURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *info)
		})
	}
}

func TestParseDetailURL_Rejects(t *testing.T) {
	urls := []string{
		"https://example.com/plans/th_12/",             // listing, not detail
		"https://example.com/plans/th_12/page_2/",      // pagination page
		"https://example.com/plans/xx_12/war_3.html",   // unknown family
		"https://example.com/guides/war_3.html",        // wrong section
		"https://example.com/plans/th_12/war_3.php",    // wrong extension
		"https://example.com/plans/th_12/War_3.html",   // case-sensitive token
		"https://example.com/plans/th_0/war_3.html",    // level must be positive
		"https://example.com/plans/th_12/war_3.html/x", // trailing segment
	}
	for _, u := range urls {
		_, err := ParseDetailURL(u)
		require.Error(t, err, "url %s should be rejected", u)
		assert.True(t, errors.Is(err, utils.ErrParsing), "err for %s should be ErrParsing", u)
	}
}

func TestListingPageURL(t *testing.T) {
	base := "https://example.com"
	assert.Equal(t, "https://example.com/plans/th_12/", ListingPageURL(base, models.CategoryMainHall, 12, 1))
	assert.Equal(t, "https://example.com/plans/th_12/page_2/", ListingPageURL(base, models.CategoryMainHall, 12, 2))
	assert.Equal(t, "https://example.com/plans/bh_9/page_10/", ListingPageURL(base, models.CategoryBuilderHall, 9, 10))
}

func TestPlansIndexURL(t *testing.T) {
	assert.Equal(t, "https://example.com/plans/", PlansIndexURL("https://example.com"))
}
