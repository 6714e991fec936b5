package storage

import (
	"context"
	"sync"
	"time"

	"github.com/movietrends/search-popularity/internal/models"
)

// MemoryStorage implements Storage with a mutex-guarded map. It backs local runs
// and tests; records do not survive a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[int64]*models.PopularityRecord
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[int64]*models.PopularityRecord)}
}

// UpsertAndIncrement creates or increments the record under the write lock
func (m *MemoryStorage) UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("upsert movie", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[movieID]
	if !ok {
		rec = &models.PopularityRecord{
			MovieID:        movieID,
			MovieMetadata:  copyMetadata(meta),
			SearchCount:    1,
			LastSearchedAt: now,
			CreatedAt:      now,
		}
		m.records[movieID] = rec
		out := *rec
		return &out, nil
	}

	rec.SearchCount++
	if now.After(rec.LastSearchedAt) {
		rec.LastSearchedAt = now
	}
	mergeMetadata(&rec.MovieMetadata, meta)

	out := *rec
	return &out, nil
}

// Find returns copies of the matching records in the requested order
func (m *MemoryStorage) Find(ctx context.Context, q Query) ([]models.PopularityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find movies", err)
	}

	m.mu.RLock()
	records := make([]models.PopularityRecord, 0, len(m.records))
	for _, rec := range m.records {
		if !q.Since.IsZero() && rec.LastSearchedAt.Before(q.Since) {
			continue
		}
		records = append(records, *rec)
	}
	m.mu.RUnlock()

	sortRecords(records, q.Sort)
	return applyLimit(records, q.Limit), nil
}

// Get returns a copy of the record for movieID
func (m *MemoryStorage) Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("get movie", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[movieID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

// CountAll returns the number of tracked movies
func (m *MemoryStorage) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("count movies", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// SumSearchCount returns the total of all search counters
func (m *MemoryStorage) SumSearchCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("sum searches", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, rec := range m.records {
		total += rec.SearchCount
	}
	return total, nil
}

// Ping always succeeds
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStorage) Close() error {
	return nil
}

func copyMetadata(meta models.MovieMetadata) models.MovieMetadata {
	out := models.MovieMetadata{Title: meta.Title}
	mergeMetadata(&out, meta)
	return out
}

// mergeMetadata overwrites the optional fields supplied in src. Title is
// never touched after creation.
func mergeMetadata(dst *models.MovieMetadata, src models.MovieMetadata) {
	if src.PosterPath != nil {
		v := *src.PosterPath
		dst.PosterPath = &v
	}
	if src.Overview != nil {
		v := *src.Overview
		dst.Overview = &v
	}
	if src.VoteAverage != nil {
		v := *src.VoteAverage
		dst.VoteAverage = &v
	}
	if src.ReleaseDate != nil {
		v := *src.ReleaseDate
		dst.ReleaseDate = &v
	}
}

var _ Storage = (*MemoryStorage)(nil)
