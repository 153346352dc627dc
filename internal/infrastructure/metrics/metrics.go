package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Currently active realtime sessions",
		},
	)

	SessionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_superseded_total",
			Help: "Sessions closed because a newer connection took over the (user, conversation) pair",
		},
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages relayed, by role",
		},
		[]string{"role"},
	)

	TokensStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_stream_events_total",
			Help: "Streaming events emitted to clients",
		},
		[]string{"granularity"}, // "delta" or "chunk"
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Sends rejected by the rate limiter",
		},
		[]string{"scope"}, // "rate" or "quota"
	)

	UpstreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Upstream provider failures surfaced as BACKEND_ERROR",
		},
	)

	HeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_heartbeat_timeouts_total",
			Help: "Connections force-closed for missing client pings",
		},
	)

	PersistRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_persist_retries_total",
			Help: "Message persistence attempts deferred to the retry queue",
		},
	)
)
