package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_rooms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Rooms
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_private_rooms_created_total",
			Help: "Total private rooms created",
		},
	)

	JoinAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_join_attempts_total",
			Help: "Private room join attempts by outcome",
		},
		[]string{"outcome"}, // joined, already_member, rejected, throttled
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"room_kind"},
	)

	HistoryCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_history_cleared_total",
			Help: "Total history clear operations",
		},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rooms_messages_deleted_total",
			Help: "Total messages removed by history clears",
		},
	)

	// Rate limit
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"},
	)

	// Live feed
	FeedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_rooms_feed_subscribers",
			Help: "Open websocket feed connections",
		},
	)
)

const (
	JoinOutcomeJoined        = "joined"
	JoinOutcomeAlreadyMember = "already_member"
	JoinOutcomeRejected      = "rejected"
	JoinOutcomeThrottled     = "throttled"
)
