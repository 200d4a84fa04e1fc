package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfare_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wayfare_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	SignIns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfare_signins_total",
			Help: "Total successful sign-ins",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfare_messages_sent_total",
			Help: "Total chat messages sent",
		},
	)

	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfare_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	TravelLogsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfare_travel_logs_created_total",
			Help: "Total travel log entries created",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfare_presence_transitions_total",
			Help: "Total presence state transitions",
		},
		[]string{"to"}, // "online" or "offline"
	)

	NoticesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wayfare_notices_queued_total",
			Help: "Total offline-delivery notices queued",
		},
	)

	// Realtime metrics
	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wayfare_realtime_sessions",
			Help: "Currently connected realtime sessions",
		},
	)

	SnapshotsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfare_snapshots_pushed_total",
			Help: "Total live snapshots pushed to realtime sessions",
		},
		[]string{"scope"}, // "conversations", "messages" or "status"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wayfare_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
