package popularity

import (
	"errors"

	"github.com/movietrends/search-popularity/internal/storage"
)

var (
	// ErrInvalidInput is returned when a track event lacks a movie id or title.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for stats on a movie that was never tracked.
	ErrNotFound = storage.ErrNotFound
	// ErrStorageUnavailable is returned when the store cannot be reached in time.
	ErrStorageUnavailable = storage.ErrUnavailable
)

// IsInvalidInput reports whether err is a validation failure.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStorageUnavailable reports whether err came from an unreachable store.
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
