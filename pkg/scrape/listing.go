package scrape

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"base-scraper/pkg/models"
	"base-scraper/pkg/parse"
	"base-scraper/pkg/utils"
)

// HTMLFetcher is the page-retrieval dependency of this package. Satisfied
// by fetch.Fetcher; tests substitute fixture-backed fakes.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// Paginator walks the sequential listing pages of one category/level and
// collects detail page URLs until a page yields nothing new, a page is
// unavailable, or the page ceiling is hit.
type Paginator struct {
	fetcher   HTMLFetcher
	baseURL   string
	maxPages  int           // runaway-loop guard, not a believed true bound
	pageDelay time.Duration // politeness gap between listing page fetches
	log       *logrus.Entry
}

// NewPaginator creates a Paginator
func NewPaginator(fetcher HTMLFetcher, baseURL string, maxPages int, pageDelay time.Duration, log *logrus.Entry) *Paginator {
	if maxPages <= 0 {
		maxPages = 20
	}
	return &Paginator{
		fetcher:   fetcher,
		baseURL:   baseURL,
		maxPages:  maxPages,
		pageDelay: pageDelay,
		log:       log,
	}
}

// ListDetailURLs discovers all detail page URLs for the given scope.
// Returns the deduplicated union across all pages visited, in discovery
// order (page order, then within-page match order).
//
// An unavailable page 1 means nothing can be discovered at all and is
// reported as a discovery failure; an unavailable later page just ends
// pagination with whatever was collected.
func (p *Paginator) ListDetailURLs(ctx context.Context, category models.HallCategory, level int) ([]string, error) {
	rootURL := ListingRootURL(p.baseURL, category, level)
	pageLog := p.log.WithFields(logrus.Fields{"category": category, "level": level})

	seen := make(map[string]struct{})
	var out []string

	for page := 1; page <= p.maxPages; page++ {
		if page > 1 {
			if err := p.sleepBetweenPages(ctx); err != nil {
				return out, nil // cancelled mid-walk; return what we have
			}
		}

		pageURL := ListingPageURL(p.baseURL, category, level, page)
		html, err := p.fetcher.FetchHTML(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("%w: listing page %s unavailable: %w", utils.ErrDiscoveryFailed, pageURL, err)
			}
			pageLog.WithField("page", page).Debugf("Listing page unavailable, ending pagination: %v", err)
			break
		}

		urls := extractDetailURLs(html, rootURL, category, level)
		newCount := 0
		for _, u := range urls {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
			newCount++
		}

		pageLog.WithFields(logrus.Fields{"page": page, "found": len(urls), "new": newCount}).Debug("Listing page scanned")

		if newCount == 0 {
			break
		}
	}

	pageLog.Infof("Discovered %d detail URLs", len(out))
	return out, nil
}

// sleepBetweenPages applies the jittered inter-page delay, honoring
// context cancellation
func (p *Paginator) sleepBetweenPages(ctx context.Context) error {
	if p.pageDelay <= 0 {
		return nil
	}
	delay := p.pageDelay
	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractDetailURLs collects detail page hrefs from listing HTML, scoped
// to the requested category/level so unrelated listings on the same page
// cannot contaminate the result. Relative hrefs are resolved against the
// listing root (bare "war_12.html" links belong to the current listing
// directory).
func extractDetailURLs(html, listingRootURL string, category models.HallCategory, level int) []string {
	root, err := url.Parse(listingRootURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := parse.ResolveRef(root, href)
		if abs == "" {
			return
		}
		info, err := ParseDetailURL(abs)
		if err != nil {
			return // not a detail page link
		}
		if info.Category != category || info.Level != level {
			return // cross-listing link, out of scope
		}
		normalized, _, err := parse.ParseAndNormalize(abs)
		if err != nil {
			return
		}
		out = append(out, normalized)
	})
	return out
}
