package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"base-scraper/pkg/config"
	"base-scraper/pkg/models"
	"base-scraper/pkg/scrape"
	"base-scraper/pkg/storage"
	"base-scraper/pkg/utils"
)

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
source_base_url: "https://bases.example.com"
max_listing_pages: 5
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "https://bases.example.com", cfg.SourceBaseURL)
	assert.Equal(t, 5, cfg.MaxListingPages)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0644))

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`source_base_url: "https://bases.example.com"`), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "OK: source=https://bases.example.com")
	assert.Contains(t, stdout.String(), "Configuration valid")
}

func TestDoValidate_MissingSourceURL(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`store_path: "/tmp/bases.json"`), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "source_base_url")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"scrape", "scrape-url", "bulk", "levels", "validate", "mcp-server", "version"} {
		assert.Contains(t, out, cmd)
	}
}

const bulkTestBase = "https://example.com"

// bulkFetcher serves canned pages by URL; unknown URLs return a 404-shaped
// error like the real fetcher would.
type bulkFetcher struct {
	pages map[string]string
	calls []string
}

func (f *bulkFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	body, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("%w: status 404 for page", utils.ErrClientHTTPError)
	}
	return body, nil
}

type memVisited struct {
	entries map[string]*storage.VisitedEntry
}

func newMemVisited() *memVisited {
	return &memVisited{entries: make(map[string]*storage.VisitedEntry)}
}

func (m *memVisited) MarkScraped(normalizedURL string, entry *storage.VisitedEntry) (bool, error) {
	_, existed := m.entries[normalizedURL]
	m.entries[normalizedURL] = entry
	return !existed, nil
}

func (m *memVisited) IsScraped(normalizedURL string) (bool, *storage.VisitedEntry, error) {
	e, ok := m.entries[normalizedURL]
	return ok, e, nil
}

func (m *memVisited) Count() int   { return len(m.entries) }
func (m *memVisited) Close() error { return nil }

type memBaseStore struct {
	saved [][]models.ScrapedRecord
}

func (m *memBaseStore) Load() (*models.BaseFile, error) {
	return &models.BaseFile{Bases: []models.ScrapedRecord{}}, nil
}

func (m *memBaseStore) Save(doc *models.BaseFile) error { return nil }

func (m *memBaseStore) MergeAndSave(newRecords []models.ScrapedRecord) (*models.BaseFile, error) {
	m.saved = append(m.saved, newRecords)
	return &models.BaseFile{TotalBases: len(newRecords), Bases: newRecords}, nil
}

func bulkTestLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func detailPage(deepLink string) string {
	if deepLink == "" {
		return `<html><title>TH12 war base</title></html>`
	}
	return fmt.Sprintf(`<html><title>TH12 war base</title><a href="%s">copy</a></html>`, deepLink)
}

func runBulkLevel(t *testing.T, f *bulkFetcher, visited storage.VisitedStore, baseStore *memBaseStore, detailDelay time.Duration) bulkLevelStats {
	t.Helper()
	log := bulkTestLogger()
	appCfg := &config.AppConfig{SourceBaseURL: bulkTestBase, DetailDelay: detailDelay}
	paginator := scrape.NewPaginator(f, bulkTestBase, 5, 0, log)
	extractor := scrape.NewExtractor(f, log)
	return scrapeLevelBulk(context.Background(), models.CategoryMainHall, 12, paginator, extractor, baseStore, visited, appCfg, log)
}

func TestScrapeLevelBulk_DelaysEveryAttempt(t *testing.T) {
	// Three targets: one collected, one failing, one without a deep link.
	// The inter-target pause must follow every attempted fetch, so the run
	// has to take at least two delay periods. war_2.html is absent from the
	// page map and fails extraction.
	f := &bulkFetcher{pages: map[string]string{
		bulkTestBase + "/plans/th_12/":           `<a href="war_1.html">a</a><a href="war_2.html">b</a><a href="war_3.html">c</a>`,
		bulkTestBase + "/plans/th_12/war_1.html": detailPage("https://link.clashofclans.com/en?id=TH12%3AWB%3AAAAA"),
		bulkTestBase + "/plans/th_12/war_3.html": detailPage(""),
	}}
	visited := newMemVisited()
	baseStore := &memBaseStore{}

	start := time.Now()
	stats := runBulkLevel(t, f, visited, baseStore, 60*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, 1, stats.scraped)
	assert.Equal(t, 1, stats.errors)
	assert.Equal(t, 1, stats.skippedNoLink)
	assert.Equal(t, 0, stats.skippedVisited)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "failed and no-link targets must still pause")

	require.Len(t, baseStore.saved, 1)
	require.Len(t, baseStore.saved[0], 1)

	// Attempted pages are marked; the failed one is not
	assert.Equal(t, 2, visited.Count())
}

func TestScrapeLevelBulk_NoDelayAfterFinalTarget(t *testing.T) {
	f := &bulkFetcher{pages: map[string]string{
		bulkTestBase + "/plans/th_12/":           `<a href="war_1.html">a</a>`,
		bulkTestBase + "/plans/th_12/war_1.html": detailPage("https://link.clashofclans.com/en?id=TH12%3AWB%3AAAAA"),
	}}

	start := time.Now()
	stats := runBulkLevel(t, f, newMemVisited(), &memBaseStore{}, time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, 1, stats.scraped)
	assert.Less(t, elapsed, 500*time.Millisecond, "single target must not sleep after finishing")
}

func TestScrapeLevelBulk_VisitedSkipsAreFree(t *testing.T) {
	f := &bulkFetcher{pages: map[string]string{
		bulkTestBase + "/plans/th_12/": `<a href="war_1.html">a</a><a href="war_2.html">b</a>`,
	}}
	visited := newMemVisited()
	entry := &storage.VisitedEntry{ScrapedAt: time.Now().UTC(), HadDeepLink: true}
	_, err := visited.MarkScraped(bulkTestBase+"/plans/th_12/war_1.html", entry)
	require.NoError(t, err)
	_, err = visited.MarkScraped(bulkTestBase+"/plans/th_12/war_2.html", entry)
	require.NoError(t, err)
	baseStore := &memBaseStore{}

	start := time.Now()
	stats := runBulkLevel(t, f, visited, baseStore, time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, 2, stats.skippedVisited)
	assert.Equal(t, 0, stats.scraped)
	assert.Less(t, elapsed, 500*time.Millisecond, "skipped targets make no request and owe no pause")
	assert.Empty(t, baseStore.saved)

	// Only listing pages were fetched
	for _, call := range f.calls {
		assert.NotContains(t, call, ".html")
	}
}
