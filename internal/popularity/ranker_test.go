package popularity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

func seed(t *testing.T, store storage.Storage, id int64, count int, last time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := store.UpsertAndIncrement(context.Background(), id, models.MovieMetadata{Title: "m"}, last)
		require.NoError(t, err)
	}
}

func movieIDs(records []models.PopularityRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.MovieID
	}
	return out
}

func TestTimeframe_Window(t *testing.T) {
	assert.Zero(t, TimeframeAll.Window())
	assert.Zero(t, Timeframe("").Window())
	assert.Equal(t, 7*24*time.Hour, TimeframeWeek.Window())
	assert.Equal(t, 30*24*time.Hour, TimeframeMonth.Window())
	assert.Equal(t, 365*24*time.Hour, TimeframeYear.Window())
	assert.Equal(t, 7*24*time.Hour, Timeframe("decade").Window())
}

func TestRanker_Trending_TieBreakOnRecency(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStorage()

	seed(t, store, 1, 5, now.Add(-3*time.Hour)) // A
	seed(t, store, 2, 5, now.Add(-2*time.Hour)) // B
	seed(t, store, 3, 3, now.Add(-1*time.Hour)) // C

	ranker := NewRanker(store, time.Second, 20)
	ranker.now = fixedClock(now)

	records, err := ranker.Trending(context.Background(), 3, TimeframeAll)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 3}, movieIDs(records))

	again, err := ranker.Trending(context.Background(), 3, TimeframeAll)
	require.NoError(t, err)
	assert.Equal(t, movieIDs(records), movieIDs(again))
}

func TestRanker_Trending_WindowFilter(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStorage()

	seed(t, store, 10, 4, now.Add(-40*24*time.Hour))
	seed(t, store, 20, 1, now.Add(-2*24*time.Hour))

	ranker := NewRanker(store, time.Second, 20)
	ranker.now = fixedClock(now)

	month, err := ranker.Trending(context.Background(), 0, TimeframeMonth)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, movieIDs(month))

	all, err := ranker.Trending(context.Background(), 0, TimeframeAll)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, movieIDs(all))

	year, err := ranker.Trending(context.Background(), 0, TimeframeYear)
	require.NoError(t, err)
	assert.Len(t, year, 2)

	unknown, err := ranker.Trending(context.Background(), 0, Timeframe("fortnight"))
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, movieIDs(unknown))
}

func TestRanker_Trending_EmptyStore(t *testing.T) {
	ranker := NewRanker(storage.NewMemoryStorage(), time.Second, 20)

	records, err := ranker.Trending(context.Background(), 20, TimeframeWeek)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestRanker_Trending_DefaultLimit(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("Find", mock.Anything, storage.Query{Sort: storage.SortByPopularity, Limit: 20}).
		Return([]models.PopularityRecord(nil), nil).Twice()

	ranker := NewRanker(mockStorage, time.Second, 20)

	for _, limit := range []int{0, -3} {
		records, err := ranker.Trending(context.Background(), limit, TimeframeAll)
		require.NoError(t, err)
		assert.Empty(t, records)
	}
	mockStorage.AssertExpectations(t)
}

func TestRanker_Trending_StorageError(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("Find", mock.Anything, mock.Anything).Return(nil, storage.ErrUnavailable)

	ranker := NewRanker(mockStorage, time.Second, 20)
	records, err := ranker.Trending(context.Background(), 5, TimeframeAll)

	assert.Nil(t, records)
	assert.True(t, IsStorageUnavailable(err))
}
