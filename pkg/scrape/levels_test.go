package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"base-scraper/pkg/models"
	"base-scraper/pkg/utils"
)

func TestProbeLevels(t *testing.T) {
	index := `<html><body>
<a href="/plans/th_12/">TH12</a>
<a href="/plans/th_11/">TH11</a>
<a href="/plans/th_12/">TH12 again</a>
<a href="/plans/bh_9/">BH9</a>
<a href="/plans/bh_5/">BH5</a>
<a href="/guides/">guides</a>
</body></html>`
	f := &fakeFetcher{pages: map[string]string{testBase + "/plans/": index}}

	levels, err := ProbeLevels(context.Background(), f, testBase, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []int{11, 12}, levels[models.CategoryMainHall], "sorted ascending, deduplicated")
	assert.Equal(t, []int{5, 9}, levels[models.CategoryBuilderHall])
}

func TestProbeLevels_IndexUnavailable(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{}}

	_, err := ProbeLevels(context.Background(), f, testBase, testLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrDiscoveryFailed))
}

func TestProbeLevels_NoLevelsOnPage(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{testBase + "/plans/": "<html><body>nothing</body></html>"}}

	levels, err := ProbeLevels(context.Background(), f, testBase, testLogger())
	require.NoError(t, err)
	assert.Empty(t, levels[models.CategoryMainHall])
	assert.Empty(t, levels[models.CategoryBuilderHall])
}
