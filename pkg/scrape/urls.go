package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"base-scraper/pkg/models"
	"base-scraper/pkg/utils"
)

// All knowledge of the source site's URL shapes lives in this package so
// the brittle screen-scraping parts stay swappable and testable in
// isolation. The shapes are load-bearing: if the site changes its URL
// scheme, these patterns stop matching and extraction silently degrades.
//
// Listing pages:  /plans/<family>_<level>/            (page 1)
//                 /plans/<family>_<level>/page_<n>/   (page n)
// Detail pages:   /plans/<family>_<level>/<type>_<number>.html

var (
	// Matches the path of a detail page URL
	detailPathRe = regexp.MustCompile(`^/plans/(th|bh)_(\d+)/([a-z]+)_(\d+)\.html$`)

	// Matches level navigation links on the plans index
	levelPathRe = regexp.MustCompile(`/plans/(th|bh)_(\d+)/`)
)

// DetailURLInfo is the structural metadata encoded in a detail page URL.
// The URL is authoritative for structure; page content is only consulted
// for the deep link, images, and title.
type DetailURLInfo struct {
	Category       models.HallCategory
	Level          int
	LayoutType     models.LayoutType
	SequenceNumber int
}

// ParseDetailURL extracts structural metadata from a detail page URL.
// Layout type synonyms are canonicalized here (defence -> defense,
// push -> trophy).
func ParseDetailURL(detailURL string) (*DetailURLInfo, error) {
	parsed, err := url.Parse(detailURL)
	if err != nil {
		return nil, fmt.Errorf("%w: detail URL '%s': %w", utils.ErrParsing, detailURL, err)
	}
	m := detailPathRe.FindStringSubmatch(parsed.Path)
	if m == nil {
		return nil, fmt.Errorf("%w: URL path '%s' does not match detail page shape", utils.ErrParsing, parsed.Path)
	}

	category, ok := models.CategoryFromSlug(m[1])
	if !ok {
		return nil, fmt.Errorf("%w: unknown hall family slug '%s'", utils.ErrParsing, m[1])
	}
	level, err := strconv.Atoi(m[2])
	if err != nil || level <= 0 {
		return nil, fmt.Errorf("%w: invalid level '%s' in URL path", utils.ErrParsing, m[2])
	}
	seq, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sequence number '%s' in URL path", utils.ErrParsing, m[4])
	}

	return &DetailURLInfo{
		Category:       category,
		Level:          level,
		LayoutType:     models.NormalizeLayoutType(m[3]),
		SequenceNumber: seq,
	}, nil
}

// ListingRootURL builds the page-1 listing URL for a category/level
func ListingRootURL(baseURL string, category models.HallCategory, level int) string {
	return fmt.Sprintf("%s/plans/%s_%d/", baseURL, category.Slug(), level)
}

// ListingPageURL builds the URL for page n of a listing (n >= 1)
func ListingPageURL(baseURL string, category models.HallCategory, level int, page int) string {
	root := ListingRootURL(baseURL, category, level)
	if page <= 1 {
		return root
	}
	return fmt.Sprintf("%spage_%d/", root, page)
}

// PlansIndexURL builds the URL of the site's plans index, whose navigation
// links reveal which hall levels are scrapable
func PlansIndexURL(baseURL string) string {
	return baseURL + "/plans/"
}
