package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movietrends/search-popularity/internal/config"
	"github.com/movietrends/search-popularity/internal/metrics"
	"github.com/movietrends/search-popularity/internal/models"
	"github.com/movietrends/search-popularity/internal/popularity"
	"github.com/movietrends/search-popularity/internal/storage"
)

const maxBodyBytes = 64 << 10

// Server handles HTTP requests
type Server struct {
	config   config.ServerConfig
	storage  storage.Storage
	tracker  *popularity.Tracker
	ranker   *popularity.Ranker
	stats    *popularity.StatsAggregator
	recorder *metrics.Recorder
	server   *http.Server
}

// Deps bundles the components the server dispatches to
type Deps struct {
	Storage  storage.Storage
	Tracker  *popularity.Tracker
	Ranker   *popularity.Ranker
	Stats    *popularity.StatsAggregator
	Recorder *metrics.Recorder
	Gatherer prometheus.Gatherer
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		config:   cfg,
		storage:  deps.Storage,
		tracker:  deps.Tracker,
		ranker:   deps.Ranker,
		stats:    deps.Stats,
		recorder: deps.Recorder,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /track", s.handleTrack)
	mux.HandleFunc("GET /movies", s.handleTrending)
	mux.HandleFunc("GET /stats", s.handleSummary)
	mux.HandleFunc("GET /stats/{movieId}", s.handleMovieStats)
	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.middleware(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports whether the store is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	if err := s.storage.Ping(ctx); err != nil {
		slog.WarnContext(r.Context(), "health check failed", "error", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTrack records one search event
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var event models.TrackEvent
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&event); err != nil && !errors.Is(err, io.EOF) {
		s.recorder.RecordTrack(metrics.OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	rec, err := s.tracker.Track(r.Context(), event)
	if err != nil {
		if popularity.IsInvalidInput(err) {
			s.recorder.RecordTrack(metrics.OutcomeInvalid)
		} else {
			s.recorder.RecordTrack(metrics.OutcomeError)
		}
		s.writeError(w, r, err)
		return
	}
	s.recorder.RecordTrack(metrics.OutcomeTracked)

	message := "Movie search count updated"
	if rec.SearchCount == 1 {
		message = "Movie search tracked"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"movie":   rec,
	})
}

// handleTrending handles trending queries
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	limit := 0 // ranker default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = string(popularity.TimeframeAll)
	}

	records, err := s.ranker.Trending(r.Context(), limit, popularity.Timeframe(timeframe))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":       records,
		"total_results": len(records),
		"timeframe":     timeframe,
		"message":       "Trending movies retrieved successfully",
	})
}

// handleMovieStats handles per-movie stats
func (s *Server) handleMovieStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("movieId"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid movie ID"})
		return
	}

	stats, err := s.stats.StatsFor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSummary handles store-wide stats
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.stats.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// writeError maps domain errors to status codes. Details of unexpected errors
// are logged and never sent to the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case popularity.IsInvalidInput(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Movie ID and title are required"})
	case popularity.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Movie not found in search tracking"})
	case popularity.IsStorageUnavailable(err):
		slog.ErrorContext(r.Context(), "storage unavailable",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Storage unavailable, please retry"})
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
