package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for a movie id.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps every failure to reach or commit to the backing store.
	ErrUnavailable = errors.New("storage unavailable")
)

// SortKey selects the ordering of Find results
type SortKey int

const (
	// SortByPopularity orders by searchCount desc, lastSearchedAt desc, movieId asc.
	SortByPopularity SortKey = iota
	// SortByRecency orders by lastSearchedAt desc, movieId asc.
	SortByRecency
)

// Query filters and orders a Find call. A zero Since disables the recency filter
// and a non-positive Limit returns every match.
type Query struct {
	Since time.Time
	Sort  SortKey
	Limit int
}

// Storage interface defines the contract for popularity record storage
type Storage interface {
	// UpsertAndIncrement creates the record with searchCount=1 or atomically
	// increments an existing one, in a single storage operation.
	UpsertAndIncrement(ctx context.Context, movieID int64, meta models.MovieMetadata, now time.Time) (*models.PopularityRecord, error)
	Find(ctx context.Context, q Query) ([]models.PopularityRecord, error)
	Get(ctx context.Context, movieID int64) (*models.PopularityRecord, error)
	CountAll(ctx context.Context) (int64, error)
	SumSearchCount(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(cfg)
	case "postgresql":
		return NewPostgreSQLStorage(cfg)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// unavailable tags a backend failure so callers can match ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// less reports whether a sorts before b under key.
func less(key SortKey, a, b *models.PopularityRecord) bool {
	if key == SortByPopularity && a.SearchCount != b.SearchCount {
		return a.SearchCount > b.SearchCount
	}
	if !a.LastSearchedAt.Equal(b.LastSearchedAt) {
		return a.LastSearchedAt.After(b.LastSearchedAt)
	}
	return a.MovieID < b.MovieID
}

// sortRecords orders records in place for backends that cannot sort server side.
func sortRecords(records []models.PopularityRecord, key SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(key, &records[i], &records[j])
	})
}

// applyLimit caps records at limit when limit is positive.
func applyLimit(records []models.PopularityRecord, limit int) []models.PopularityRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
