package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twin_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	ProfilesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twin_profiles_created_total",
			Help: "Total profiles created on first visit",
		},
	)

	ServersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twin_servers_created_total",
			Help: "Total servers created",
		},
	)

	ChannelMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_channel_mutations_total",
			Help: "Channel mutations by action and outcome",
		},
		[]string{"action", "outcome"}, // create|update|delete, ok|forbidden|not_found
	)

	MessageMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_message_mutations_total",
			Help: "Message mutations by scope and action",
		},
		[]string{"scope", "action"}, // direct|channel, create|update|delete
	)

	// Realtime metrics
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "twin_realtime_clients",
			Help: "Connected realtime clients on this instance",
		},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_realtime_events_total",
			Help: "Realtime events emitted",
		},
		[]string{"kind"}, // new|update
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "twin_realtime_dropped_total",
			Help: "Realtime deliveries dropped because a client buffer was full",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twin_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
