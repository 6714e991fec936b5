package popularity

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error) {
	args := m.Called(ctx, movieID, meta, now)
	rec, _ := args.Get(0).(*models.PopularityRecord)
	return rec, args.Error(1)
}

func (m *MockStorage) Find(ctx context.Context, q storage.Query) ([]models.PopularityRecord, error) {
	args := m.Called(ctx, q)
	records, _ := args.Get(0).([]models.PopularityRecord)
	return records, args.Error(1)
}

func (m *MockStorage) Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error) {
	args := m.Called(ctx, movieID)
	rec, _ := args.Get(0).(*models.PopularityRecord)
	return rec, args.Error(1)
}

func (m *MockStorage) CountAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SumSearchCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
