// Package metrics collects and exposes Prometheus metrics for the feed
// server and the invalidation worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the server and the worker record into.
type MetricsCollector interface {
	RecordFeedComputed(d time.Duration, entries int)
	RecordFeedFailure()
	RecordCacheHit()
	RecordCacheMiss()
	RecordEventProcessed(kind string)
	RecordEventFailure(kind string)
	RecordInvalidations(count int)
}

type Collector struct {
	feedComputed   prometheus.Counter
	feedFailed     prometheus.Counter
	computeSeconds prometheus.Histogram
	feedEntries    prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	events         *prometheus.CounterVec
	eventFailures  *prometheus.CounterVec
	invalidations  prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialfeed_feed_computed_total",
			Help: "Number of home feeds computed",
		}),
		feedFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialfeed_feed_failed_total",
			Help: "Number of home feed computations that failed",
		}),
		computeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialfeed_feed_compute_seconds",
			Help:    "Time spent computing a home feed",
			Buckets: prometheus.DefBuckets,
		}),
		feedEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialfeed_feed_entries",
			Help:    "Number of entries in a computed feed",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_feed_cache_lookups_total",
			Help: "Feed cache lookups by result",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_events_processed_total",
			Help: "Activity events processed by the worker, by kind",
		}, []string{"kind"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialfeed_events_failed_total",
			Help: "Activity events the worker failed to process, by kind",
		}, []string{"kind"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialfeed_feed_invalidations_total",
			Help: "Number of cached feeds invalidated",
		}),
	}

	reg.MustRegister(
		c.feedComputed,
		c.feedFailed,
		c.computeSeconds,
		c.feedEntries,
		c.cacheLookups,
		c.events,
		c.eventFailures,
		c.invalidations,
	)

	return c
}

func (c *Collector) RecordFeedComputed(d time.Duration, entries int) {
	c.feedComputed.Inc()
	c.computeSeconds.Observe(d.Seconds())
	c.feedEntries.Observe(float64(entries))
}

func (c *Collector) RecordFeedFailure() {
	c.feedFailed.Inc()
}

func (c *Collector) RecordCacheHit() {
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collector) RecordCacheMiss() {
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordEventProcessed(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordEventFailure(kind string) {
	c.eventFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordInvalidations(count int) {
	c.invalidations.Add(float64(count))
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordFeedComputed(time.Duration, int) {}
func (Nop) RecordFeedFailure()                    {}
func (Nop) RecordCacheHit()                       {}
func (Nop) RecordCacheMiss()                      {}
func (Nop) RecordEventProcessed(string)           {}
func (Nop) RecordEventFailure(string)             {}
func (Nop) RecordInvalidations(int)               {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute returns a mux serving /metrics only.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
