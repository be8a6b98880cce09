package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Mailbox metrics
	EnvelopesEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_envelopes_enqueued_total",
			Help: "Total envelopes stored",
		},
	)

	DuplicateSends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_duplicate_sends_total",
			Help: "Sends suppressed by an idempotency token",
		},
	)

	EnvelopesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_envelopes_delivered_total",
			Help: "Total envelopes removed from mailboxes by consumers",
		},
		[]string{"op"}, // "drain" or "take"
	)

	EnvelopesCorrupt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_envelopes_corrupt_total",
			Help: "Removed mailbox values that could not be decoded",
		},
	)

	IdentitiesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_identities_resolved_total",
			Help: "Agent identities resolved, by rule",
		},
		[]string{"source"},
	)

	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_agents_registered_total",
			Help: "Total register calls",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdom_relay_connections",
			Help: "Open relay connections",
		},
	)

	RelayFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdom_relay_frames_total",
			Help: "Inbound relay frames by type",
		},
		[]string{"type"},
	)

	RelayDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_relay_deliveries_total",
			Help: "Frames queued to subscribers",
		},
	)

	RelayDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sdom_relay_dropped_total",
			Help: "Frames dropped because a subscriber queue was full",
		},
	)

	RelayPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdom_relay_known_peers",
			Help: "Size of the announced peer set",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sdom_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
