package popularity

import (
	"context"
	"fmt"
	"time"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

// StatsAggregator computes store-wide and per-movie statistics
type StatsAggregator struct {
	storage     storage.Storage
	timeout     time.Duration
	recentCount int
}

// NewStatsAggregator creates an aggregator returning recentCount recent searches
func NewStatsAggregator(store storage.Storage, timeout time.Duration, recentCount int) *StatsAggregator {
	if recentCount <= 0 {
		recentCount = 5
	}
	return &StatsAggregator{
		storage:     store,
		timeout:     timeout,
		recentCount: recentCount,
	}
}

// Summary reads totals, the top movie and the most recent searches. The reads
// are independent, so under concurrent writes the parts may be slightly apart.
func (s *StatsAggregator) Summary(ctx context.Context) (*models.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	total, err := s.storage.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count movies: %w", err)
	}

	searches, err := s.storage.SumSearchCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum searches: %w", err)
	}

	top, err := s.storage.Find(ctx, storage.Query{Sort: storage.SortByPopularity, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to find top movie: %w", err)
	}

	recent, err := s.storage.Find(ctx, storage.Query{Sort: storage.SortByRecency, Limit: s.recentCount})
	if err != nil {
		return nil, fmt.Errorf("failed to find recent searches: %w", err)
	}
	if recent == nil {
		recent = []models.PopularityRecord{}
	}

	summary := &models.Summary{
		TotalMoviesTracked: total,
		TotalSearches:      searches,
		RecentSearches:     recent,
	}
	if len(top) > 0 {
		summary.TopMovie = &top[0]
	}

	return summary, nil
}

// StatsFor returns the per-movie stats, ErrNotFound when never tracked
func (s *StatsAggregator) StatsFor(ctx context.Context, movieID int64) (*models.MovieStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.storage.Get(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for movie %d: %w", movieID, err)
	}

	return &models.MovieStats{
		MovieID:        rec.MovieID,
		Title:          rec.Title,
		SearchCount:    rec.SearchCount,
		LastSearchedAt: rec.LastSearchedAt,
		CreatedAt:      rec.CreatedAt,
	}, nil
}
