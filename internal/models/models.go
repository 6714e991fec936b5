package models

import "time"

// MovieMetadata is the descriptive part of a movie as reported by the catalog
type MovieMetadata struct {
	Title       string   `json:"title" bson:"title"`
	PosterPath  *string  `json:"poster_path,omitempty" bson:"poster_path,omitempty"`
	Overview    *string  `json:"overview,omitempty" bson:"overview,omitempty"`
	VoteAverage *float64 `json:"vote_average,omitempty" bson:"vote_average,omitempty"`
	ReleaseDate *string  `json:"release_date,omitempty" bson:"release_date,omitempty"`
}

// TrackEvent is one "movie was searched" submission
type TrackEvent struct {
	MovieID     int64    `json:"movieId"`
	Title       string   `json:"title"`
	PosterPath  *string  `json:"poster_path,omitempty"`
	Overview    *string  `json:"overview,omitempty"`
	VoteAverage *float64 `json:"vote_average,omitempty"`
	ReleaseDate *string  `json:"release_date,omitempty"`
}

// Metadata returns the descriptive fields carried by the event
func (e TrackEvent) Metadata() MovieMetadata {
	return MovieMetadata{
		Title:       e.Title,
		PosterPath:  e.PosterPath,
		Overview:    e.Overview,
		VoteAverage: e.VoteAverage,
		ReleaseDate: e.ReleaseDate,
	}
}

// PopularityRecord is the stored counter and metadata for one movie
type PopularityRecord struct {
	MovieID        int64     `json:"movieId" bson:"movieId"`
	MovieMetadata  `json:",inline" bson:",inline"`
	SearchCount    int64     `json:"searchCount" bson:"searchCount"`
	LastSearchedAt time.Time `json:"lastSearchedAt" bson:"lastSearchedAt"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}

// MovieStats is the per-movie view returned by single-movie lookups
type MovieStats struct {
	MovieID        int64     `json:"movieId"`
	Title          string    `json:"title"`
	SearchCount    int64     `json:"searchCount"`
	LastSearchedAt time.Time `json:"lastSearchedAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Summary holds store-wide statistics
type Summary struct {
	TotalMoviesTracked int64              `json:"totalMoviesTracked"`
	TotalSearches      int64              `json:"totalSearches"`
	TopMovie           *PopularityRecord  `json:"topMovie"`
	RecentSearches     []PopularityRecord `json:"recentSearches"`
}
