package scrape

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"base-scraper/pkg/models"
	"base-scraper/pkg/parse"
	"base-scraper/pkg/utils"
)

// deepLinkRe matches the game client's layout-import URL anywhere in raw
// page HTML. The link's internal structure is owned by the game and never
// interpreted here; it is captured, decoded, and stored opaquely.
var deepLinkRe = regexp.MustCompile(`https?://link\.clashofclans\.com/[^\s"'<>\\]+`)

// Extractor turns a single detail page into a ScrapedRecord. Structural
// metadata comes from the URL shape alone; the page body contributes only
// the deep link, images, and title.
type Extractor struct {
	fetcher HTMLFetcher
	log     *logrus.Entry
}

// NewExtractor creates an Extractor
func NewExtractor(fetcher HTMLFetcher, log *logrus.Entry) *Extractor {
	return &Extractor{fetcher: fetcher, log: log}
}

// Extract fetches a detail page and builds its record. A record whose
// DeepLink is empty is still returned with all other fields populated
// (useful for inspection); the orchestrator drops it before persistence.
func (e *Extractor) Extract(ctx context.Context, detailURL string) (*models.ScrapedRecord, error) {
	info, err := ParseDetailURL(detailURL)
	if err != nil {
		return nil, err
	}

	pageHTML, err := e.fetcher.FetchHTML(ctx, detailURL)
	if err != nil {
		return nil, err
	}

	rec := &models.ScrapedRecord{
		SourceURL:      detailURL,
		Category:       info.Category,
		Level:          info.Level,
		LayoutType:     info.LayoutType,
		SequenceNumber: info.SequenceNumber,
		DeepLink:       extractDeepLink(pageHTML),
		ScrapedAt:      time.Now().UTC(),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML parse of %s: %w", utils.ErrParsing, detailURL, err)
	}

	origin, err := url.Parse(detailURL)
	if err != nil {
		return nil, fmt.Errorf("%w: detail URL '%s': %w", utils.ErrParsing, detailURL, err)
	}

	rec.FullImageURL, rec.ThumbnailURL = extractImages(doc, origin)

	rec.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if rec.Title == "" {
		rec.Title = rec.FallbackTitle()
	}

	if rec.DeepLink == "" {
		e.log.WithField("url", detailURL).Debug("Detail page has no deep link")
	}

	return rec, nil
}

// extractDeepLink finds the first game deep link in the raw HTML,
// HTML-entity-decodes it, then URL-decodes it. Returns "" if absent.
func extractDeepLink(pageHTML string) string {
	match := deepLinkRe.FindString(pageHTML)
	if match == "" {
		return ""
	}
	decoded := html.UnescapeString(match)
	if unescaped, err := url.QueryUnescape(decoded); err == nil {
		decoded = unescaped
	}
	return decoded
}

// extractImages locates the best full-resolution image and, independently,
// a thumbnail. The full image is searched as an "original" reference in
// src, then href, then data-src; failing all three, a "preview" reference
// is accepted. Relative paths are resolved against the page origin.
func extractImages(doc *goquery.Document, origin *url.URL) (fullImage, thumbnail string) {
	for _, attr := range []string{"src", "href", "data-src"} {
		if ref := firstAttrContaining(doc, attr, "original"); ref != "" {
			fullImage = parse.ResolveRef(origin, ref)
			break
		}
	}
	if fullImage == "" {
		for _, attr := range []string{"src", "href", "data-src"} {
			if ref := firstAttrContaining(doc, attr, "preview"); ref != "" {
				fullImage = parse.ResolveRef(origin, ref)
				break
			}
		}
	}

	// A thumb is captured regardless of whether a full image was found
	for _, attr := range []string{"src", "data-src"} {
		if ref := firstAttrContaining(doc, attr, "thumb"); ref != "" {
			thumbnail = parse.ResolveRef(origin, ref)
			break
		}
	}
	return fullImage, thumbnail
}

// firstAttrContaining returns the first value of the given attribute that
// contains marker as a substring, searching document order
func firstAttrContaining(doc *goquery.Document, attr, marker string) string {
	var found string
	doc.Find(fmt.Sprintf("[%s*='%s']", attr, marker)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		val, ok := s.Attr(attr)
		if ok && strings.Contains(val, marker) {
			found = val
			return false
		}
		return true
	})
	return found
}
