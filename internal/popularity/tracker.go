package popularity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/storage"
)

// Clock returns the current time. Tests replace it to control timestamps.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// Tracker validates search events and records them in the store
type Tracker struct {
	storage storage.Storage
	timeout time.Duration
	now     Clock
}

// NewTracker creates a tracker whose storage calls are bounded by timeout
func NewTracker(store storage.Storage, timeout time.Duration) *Tracker {
	return &Tracker{
		storage: store,
		timeout: timeout,
		now:     utcNow,
	}
}

// Track records one search. Every accepted call increments the movie's counter
// by exactly one; nothing is written when validation fails.
//
// The write is detached from ctx cancellation so a caller giving up does not
// abort an admitted write; the storage timeout still applies.
func (t *Tracker) Track(ctx context.Context, event models.TrackEvent) (*models.PopularityRecord, error) {
	if err := validate(event); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()

	rec, err := t.storage.UpsertAndIncrement(ctx, event.MovieID, event.Metadata(), t.now())
	if err != nil {
		return nil, fmt.Errorf("failed to track movie %d: %w", event.MovieID, err)
	}

	slog.DebugContext(ctx, "movie search tracked",
		"movie_id", rec.MovieID,
		"search_count", rec.SearchCount,
	)
	return rec, nil
}

func validate(event models.TrackEvent) error {
	if event.MovieID <= 0 {
		return fmt.Errorf("%w: movieId must be a positive integer", ErrInvalidInput)
	}
	if strings.TrimSpace(event.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}
