package popularity

import (
	"context"
	"fmt"
	"time"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

// Timeframe names a trending lookback window
type Timeframe string

const (
	TimeframeAll   Timeframe = "all"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

const day = 24 * time.Hour

// Window returns the lookback duration, zero meaning unbounded. Unrecognised
// names fall back to one week.
func (tf Timeframe) Window() time.Duration {
	switch tf {
	case TimeframeAll, "":
		return 0
	case TimeframeMonth:
		return 30 * day
	case TimeframeYear:
		return 365 * day
	default:
		return 7 * day
	}
}

// Ranker answers trending queries
type Ranker struct {
	storage      storage.Storage
	timeout      time.Duration
	defaultLimit int
	now          Clock
}

// NewRanker creates a ranker. Limits of zero or less resolve to defaultLimit.
func NewRanker(store storage.Storage, timeout time.Duration, defaultLimit int) *Ranker {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &Ranker{
		storage:      store,
		timeout:      timeout,
		defaultLimit: defaultLimit,
		now:          utcNow,
	}
}

// Trending returns up to limit records searched within the timeframe, most
// searched first and most recently searched among equals.
func (r *Ranker) Trending(ctx context.Context, limit int, timeframe Timeframe) ([]models.PopularityRecord, error) {
	if limit <= 0 {
		limit = r.defaultLimit
	}

	q := storage.Query{Sort: storage.SortByPopularity, Limit: limit}
	if window := timeframe.Window(); window > 0 {
		q.Since = r.now().Add(-window)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.storage.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to rank movies: %w", err)
	}
	if records == nil {
		records = []models.PopularityRecord{}
	}
	return records, nil
}
