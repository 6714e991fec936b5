package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movietrends/search-popularity/internal/storage"
)

// Track outcomes.
const (
	OutcomeTracked = "tracked"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

var (
	trackedMoviesDesc = prometheus.NewDesc(
		"movietrends_tracked_movies",
		"Number of distinct movies with at least one tracked search",
		nil, nil,
	)
	searchesDesc = prometheus.NewDesc(
		"movietrends_searches",
		"Sum of search counts over all tracked movies",
		nil, nil,
	)
)

// StoreCollector is a custom Prometheus collector that reads popularity totals
// from the store on each scrape.
type StoreCollector struct {
	store   storage.Storage
	timeout time.Duration
}

// Describe sends the metric descriptors to the channel.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- trackedMoviesDesc
	ch <- searchesDesc
}

// Collect queries the store and emits the totals as gauges.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	movies, err := c.store.CountAll(ctx)
	if err != nil {
		slog.Error("failed to collect tracked movie count", "error", err)
		return
	}
	searches, err := c.store.SumSearchCount(ctx)
	if err != nil {
		slog.Error("failed to collect search total", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(trackedMoviesDesc, prometheus.GaugeValue, float64(movies))
	ch <- prometheus.MustNewConstMetric(searchesDesc, prometheus.GaugeValue, float64(searches))
}

// Recorder counts request outcomes.
type Recorder struct {
	trackRequests *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the store collector and request metrics on reg.
func New(reg prometheus.Registerer, store storage.Storage, timeout time.Duration) *Recorder {
	r := &Recorder{
		trackRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movietrends_track_requests_total",
			Help: "Track requests by outcome",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "movietrends_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		&StoreCollector{store: store, timeout: timeout},
		r.trackRequests,
		r.httpDuration,
	)
	return r
}

// RecordTrack counts one track request outcome.
func (r *Recorder) RecordTrack(outcome string) {
	if r == nil {
		return
	}
	r.trackRequests.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (r *Recorder) ObserveRequest(route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
