// Package metrics declares the Prometheus instruments exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles counts completed poll cycles.
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgreddit_poll_cycles_total",
		Help: "Number of completed poll cycles",
	})

	// PollCycleDuration observes how long a full poll cycle takes.
	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tgreddit_poll_cycle_duration_seconds",
		Help:    "Duration of a poll cycle over all subscriptions",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// Subscriptions reports the number of subscriptions seen by the last cycle.
	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tgreddit_subscriptions",
		Help: "Number of subscriptions processed in the last poll cycle",
	})

	// FetchErrors counts failed listing fetches per subreddit.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_fetch_errors_total",
		Help: "Number of failed subreddit listing fetches",
	}, []string{"subreddit"})

	// PostsSkipped counts new posts marked seen without delivery, by reason.
	PostsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_posts_skipped_total",
		Help: "Number of new posts recorded without delivery",
	}, []string{"reason"})

	// Deliveries counts dispatch outcomes per post type.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_deliveries_total",
		Help: "Number of post deliveries by type and outcome",
	}, []string{"type", "outcome"})

	// DeliveryDuration observes delivery latency per post type.
	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgreddit_delivery_duration_seconds",
		Help:    "Duration of a single post delivery",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// SourceRequests counts content source calls by endpoint and outcome.
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_source_requests_total",
		Help: "Number of content source requests",
	}, []string{"endpoint", "outcome"})

	// ListingCacheHits counts listing requests served from cache.
	ListingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgreddit_listing_cache_hits_total",
		Help: "Number of listing requests served from cache",
	})

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgreddit_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_circuit_breaker_transitions_total",
		Help: "Number of circuit breaker state transitions",
	}, []string{"name", "from", "to"})

	// Commands counts chat commands handled.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_commands_total",
		Help: "Number of chat commands handled",
	}, []string{"command"})

	// MediaDownloads counts media downloads by downloader and outcome.
	MediaDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgreddit_media_downloads_total",
		Help: "Number of media downloads",
	}, []string{"downloader", "outcome"})
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)
