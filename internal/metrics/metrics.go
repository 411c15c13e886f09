package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	IdentitiesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_identities_registered_total",
			Help: "Total identities registered",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	ResolveConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_resolve_conflicts_total",
			Help: "Concurrent first-contact races resolved by re-reading the winner",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_messages_sent_total",
			Help: "Total messages sent",
		},
	)

	ReadsMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inbox_reads_marked_total",
			Help: "Total read cursor advances",
		},
	)

	ArchiveToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_archive_toggles_total",
			Help: "Total archive and unarchive operations",
		},
		[]string{"action"}, // "archive" or "unarchive"
	)

	EventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_event_publish_failures_total",
			Help: "Events that could not be published",
		},
		[]string{"type"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inbox_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inbox_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
