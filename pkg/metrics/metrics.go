package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fgc", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fgc", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// SessionTransitions counts snapshot changes by the resulting state
	// (signed_out, resolving, pending_profile, ready).
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fgc", Name: "session_transitions_total", Help: "Session snapshot changes by resulting state."},
		[]string{"state"},
	)
	StaleProfileUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "fgc", Name: "session_stale_profile_updates_total", Help: "Profile feed deliveries dropped because their identity is no longer current."},
	)
	ProfileFeedErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "fgc", Name: "session_profile_feed_errors_total", Help: "Profile feed errors that degraded a session snapshot."},
	)
	LiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "fgc", Name: "live_sessions", Help: "Session stores currently running in this gateway."},
	)
	ViewResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fgc", Name: "view_resolutions_total", Help: "Gate decisions by rendered view and whether the request was substituted."},
		[]string{"view", "substituted"},
	)
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fgc", Name: "backend_requests_total", Help: "REST backend calls by endpoint and outcome."},
		[]string{"endpoint", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionTransitions)
	reg.MustRegister(StaleProfileUpdates)
	reg.MustRegister(ProfileFeedErrors)
	reg.MustRegister(LiveSessions)
	reg.MustRegister(ViewResolutions)
	reg.MustRegister(BackendRequests)
}
