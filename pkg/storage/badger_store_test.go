package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), "example.com", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(hadDeepLink bool) *VisitedEntry {
	return &VisitedEntry{ScrapedAt: time.Now().Truncate(time.Second).UTC(), HadDeepLink: hadDeepLink}
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("resume preserves data", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "example.com", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkScraped("https://example.com/plans/th_12/war_1.html", entry(true))
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "example.com", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		assert.Equal(t, 1, store2.Count())
		seen, _, err := store2.IsScraped("https://example.com/plans/th_12/war_1.html")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("fresh start wipes data", func(t *testing.T) {
		dir := t.TempDir()
		logger := testLogger()

		store1, err := NewBadgerStore(dir, "example.com", false, logger)
		require.NoError(t, err)
		_, err = store1.MarkScraped("https://example.com/plans/th_12/war_1.html", entry(true))
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "example.com", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		assert.Equal(t, 0, store2.Count())
	})

	t.Run("db directory name derives from host", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(dir, "www.example.com", false, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		_, err = os.Stat(filepath.Join(dir, "www.example.com_visited_db"))
		assert.NoError(t, err)
	})
}

func TestMarkScraped(t *testing.T) {
	store := newTestStore(t)
	url := "https://example.com/plans/th_12/war_1.html"

	isNew, err := store.MarkScraped(url, entry(true))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 1, store.Count())

	// Marking again is not new and does not inflate the count
	isNew, err = store.MarkScraped(url, entry(true))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 1, store.Count())
}

func TestIsScraped(t *testing.T) {
	store := newTestStore(t)
	url := "https://example.com/plans/bh_9/trophy_4.html"

	seen, got, err := store.IsScraped(url)
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Nil(t, got)

	want := entry(false)
	_, err = store.MarkScraped(url, want)
	require.NoError(t, err)

	seen, got, err = store.IsScraped(url)
	require.NoError(t, err)
	assert.True(t, seen)
	require.NotNil(t, got)
	assert.Equal(t, want.HadDeepLink, got.HadDeepLink)
	assert.True(t, want.ScrapedAt.Equal(got.ScrapedAt))
}

func TestCount_TracksDistinctURLs(t *testing.T) {
	store := newTestStore(t)

	urls := []string{
		"https://example.com/plans/th_12/war_1.html",
		"https://example.com/plans/th_12/war_2.html",
		"https://example.com/plans/bh_9/trophy_1.html",
	}
	for _, u := range urls {
		_, err := store.MarkScraped(u, entry(true))
		require.NoError(t, err)
	}
	assert.Equal(t, len(urls), store.Count())
}
