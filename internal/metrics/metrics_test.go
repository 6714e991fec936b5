package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

func TestStoreCollector_Collect(t *testing.T) {
	store := storage.NewMemoryStorage()
	now := time.Now().UTC()
	for _, id := range []int64{1, 1, 2} {
		_, err := store.UpsertAndIncrement(context.Background(), id, models.MovieMetadata{Title: "m"}, now)
		require.NoError(t, err)
	}

	collector := &StoreCollector{store: store, timeout: time.Second}
	expected := `
# HELP movietrends_searches Sum of search counts over all tracked movies
# TYPE movietrends_searches gauge
movietrends_searches 3
# HELP movietrends_tracked_movies Number of distinct movies with at least one tracked search
# TYPE movietrends_tracked_movies gauge
movietrends_tracked_movies 2
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected))
	assert.NoError(t, err)
}

func TestRecorder_RecordTrack(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg, storage.NewMemoryStorage(), time.Second)

	rec.RecordTrack(OutcomeTracked)
	rec.RecordTrack(OutcomeTracked)
	rec.RecordTrack(OutcomeInvalid)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.trackRequests.WithLabelValues(OutcomeTracked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.trackRequests.WithLabelValues(OutcomeInvalid)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.trackRequests.WithLabelValues(OutcomeError)))
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	assert.NotPanics(t, func() {
		rec.RecordTrack(OutcomeError)
		rec.ObserveRequest("/track", "500", time.Millisecond)
	})
}
