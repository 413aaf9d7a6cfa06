package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis command failures by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// CacheLookups counts cache-aside lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_cache_lookups_total",
		Help: "Cache-aside lookups by result",
	}, []string{"result"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classifieds_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ListingsCreated counts listings created, labelled by whether they started moderated.
	ListingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_listings_created_total",
		Help: "Total number of listings created",
	}, []string{"moderated"})

	// ModerationActions counts staff moderation actions by action and target kind.
	ModerationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_moderation_actions_total",
		Help: "Total number of moderation actions by action",
	}, []string{"action", "target"})

	// ImagesProcessed counts uploaded images by outcome.
	ImagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_images_processed_total",
		Help: "Total number of uploaded images processed",
	}, []string{"outcome"})

	// EventsPublished counts domain events handed to the broker by subject and result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifieds_events_published_total",
		Help: "Total number of domain events published",
	}, []string{"subject", "result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
