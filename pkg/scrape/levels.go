package scrape

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"base-scraper/pkg/models"
	"base-scraper/pkg/utils"
)

// ProbeLevels fetches the source site's plans index and pattern-matches
// its navigation links to discover which hall levels are scrapable.
// Returned level slices are sorted ascending and deduplicated.
func ProbeLevels(ctx context.Context, fetcher HTMLFetcher, baseURL string, log *logrus.Entry) (map[models.HallCategory][]int, error) {
	indexURL := PlansIndexURL(baseURL)
	html, err := fetcher.FetchHTML(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("%w: plans index %s unavailable: %w", utils.ErrDiscoveryFailed, indexURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: plans index %s unparseable: %w", utils.ErrDiscoveryFailed, indexURL, err)
	}

	seen := make(map[models.HallCategory]map[int]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := levelPathRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		category, ok := models.CategoryFromSlug(m[1])
		if !ok {
			return
		}
		level, err := strconv.Atoi(m[2])
		if err != nil || level <= 0 {
			return
		}
		if seen[category] == nil {
			seen[category] = make(map[int]struct{})
		}
		seen[category][level] = struct{}{}
	})

	out := make(map[models.HallCategory][]int, len(seen))
	for category, levels := range seen {
		sorted := make([]int, 0, len(levels))
		for level := range levels {
			sorted = append(sorted, level)
		}
		sort.Ints(sorted)
		out[category] = sorted
	}

	log.WithFields(logrus.Fields{
		"main_hall_levels":    len(out[models.CategoryMainHall]),
		"builder_hall_levels": len(out[models.CategoryBuilderHall]),
	}).Info("Probed scrapable levels")

	return out, nil
}
