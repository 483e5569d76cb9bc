package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll tick outcomes.
const (
	OutcomeRun     = "run"
	OutcomeFailed  = "failed"
	OutcomePanic   = "panic"
	OutcomeHidden  = "skipped_hidden"
	OutcomeStopped = "stopped"
)

var (
	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sync_poll_ticks_total",
			Help: "Scheduled poll ticks by task and outcome.",
		},
		[]string{"task", "outcome"},
	)

	pollDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_sync_poll_duration_seconds",
			Help:    "Duration of poll task invocations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	staleResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sync_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them.",
		},
		[]string{"stream"},
	)

	deviceFetchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "console_sync_device_event_fetch_failures_total",
			Help: "Per-device event fetches that failed or returned nothing.",
		},
	)

	brokerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sync_broker_status_transitions_total",
			Help: "Broker connection status transitions by target status.",
		},
		[]string{"status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_sync_notifications_total",
			Help: "User-facing notifications raised by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		pollTicksTotal,
		pollDurationSeconds,
		staleResponsesTotal,
		deviceFetchFailuresTotal,
		brokerTransitionsTotal,
		notificationsTotal,
	)
}

func ObservePollTick(task, outcome string) {
	pollTicksTotal.WithLabelValues(task, outcome).Inc()
}

func ObservePollDuration(task string, seconds float64) {
	pollDurationSeconds.WithLabelValues(task).Observe(seconds)
}

func ObserveStaleResponse(stream string) {
	staleResponsesTotal.WithLabelValues(stream).Inc()
}

func ObserveDeviceFetchFailure() {
	deviceFetchFailuresTotal.Inc()
}

func ObserveBrokerTransition(status string) {
	brokerTransitionsTotal.WithLabelValues(status).Inc()
}

func ObserveNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
