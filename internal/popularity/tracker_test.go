package popularity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

func TestTracker_Track_CreatesThenIncrements(t *testing.T) {
	store := storage.NewMemoryStorage()
	tracker := NewTracker(store, time.Second)

	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tracker.now = fixedClock(first)

	rec, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 603, Title: "The Matrix"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.SearchCount)
	assert.Equal(t, first, rec.CreatedAt)
	assert.Equal(t, first, rec.LastSearchedAt)

	second := first.Add(10 * time.Minute)
	tracker.now = fixedClock(second)

	rec, err = tracker.Track(context.Background(), models.TrackEvent{MovieID: 603, Title: "The Matrix"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.SearchCount)
	assert.Equal(t, first, rec.CreatedAt)
	assert.Equal(t, second, rec.LastSearchedAt)
}

func TestTracker_Track_ConcurrentSameMovie(t *testing.T) {
	store := storage.NewMemoryStorage()
	tracker := NewTracker(store, 5*time.Second)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 27205, Title: "Inception"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := store.Get(context.Background(), 27205)
	require.NoError(t, err)
	assert.Equal(t, int64(n), rec.SearchCount)
	assert.False(t, rec.LastSearchedAt.Before(rec.CreatedAt))
}

func TestTracker_Track_OutOfOrderClock(t *testing.T) {
	store := storage.NewMemoryStorage()
	tracker := NewTracker(store, time.Second)

	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(50 * time.Millisecond)

	tracker.now = fixedClock(t2)
	_, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 1, Title: "Alien"})
	require.NoError(t, err)

	tracker.now = fixedClock(t1)
	rec, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 1, Title: "Alien"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), rec.SearchCount)
	assert.Equal(t, t2, rec.CreatedAt)
	assert.Equal(t, t2, rec.LastSearchedAt)
	assert.False(t, rec.LastSearchedAt.Before(rec.CreatedAt))
}

func TestTracker_Track_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		event models.TrackEvent
	}{
		{"missing movie id", models.TrackEvent{Title: "X"}},
		{"negative movie id", models.TrackEvent{MovieID: -4, Title: "X"}},
		{"missing title", models.TrackEvent{MovieID: 12}},
		{"blank title", models.TrackEvent{MovieID: 12, Title: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStorage := new(MockStorage)
			tracker := NewTracker(mockStorage, time.Second)

			rec, err := tracker.Track(context.Background(), tt.event)

			assert.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, IsInvalidInput(err))
			mockStorage.AssertNotCalled(t, "UpsertAndIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTracker_Track_NoRecordOnInvalidInput(t *testing.T) {
	store := storage.NewMemoryStorage()
	tracker := NewTracker(store, time.Second)

	_, err := tracker.Track(context.Background(), models.TrackEvent{Title: "X"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	count, err := store.CountAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTracker_Track_StorageUnavailable(t *testing.T) {
	mockStorage := new(MockStorage)
	mockStorage.On("UpsertAndIncrement", mock.Anything, int64(8), mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("failed to upsert movie 8: %w", storage.ErrUnavailable))

	tracker := NewTracker(mockStorage, time.Second)
	rec, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 8, Title: "Eight"})

	assert.Nil(t, rec)
	assert.True(t, IsStorageUnavailable(err))
	assert.Contains(t, err.Error(), "failed to track movie 8")
	mockStorage.AssertExpectations(t)
}

func TestTracker_Track_PassesMetadataAndTimeout(t *testing.T) {
	poster := "/poster.jpg"
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mockStorage := new(MockStorage)
	mockStorage.On("UpsertAndIncrement",
		mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}),
		int64(11),
		models.MovieMetadata{Title: "Eleven", PosterPath: &poster},
		now,
	).Return(&models.PopularityRecord{MovieID: 11, SearchCount: 1}, nil)

	tracker := NewTracker(mockStorage, time.Second)
	tracker.now = fixedClock(now)

	rec, err := tracker.Track(context.Background(), models.TrackEvent{MovieID: 11, Title: "Eleven", PosterPath: &poster})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.SearchCount)
	mockStorage.AssertExpectations(t)
}

func TestTracker_Track_CallerCancellationDoesNotAbortWrite(t *testing.T) {
	store := storage.NewMemoryStorage()
	tracker := NewTracker(store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := tracker.Track(ctx, models.TrackEvent{MovieID: 99, Title: "Ninety-Nine"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.SearchCount)
}
