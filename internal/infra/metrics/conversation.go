package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		eventsTotal,
		transitionsTotal,
		handlerDuration,
		invalidEventsTotal,
		duplicateEventsTotal,
		upstreamErrorsTotal,
		geocodeRequestsTotal,
	)
}

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_events_total",
			Help: "Inbound normalized events by channel and kind.",
		},
		[]string{"channel", "kind"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_transitions_total",
			Help: "Persisted state transitions.",
		},
		[]string{"from", "to"},
	)

	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_handler_duration_seconds",
			Help:    "Time spent handling one event, lock wait included.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"state"},
	)

	invalidEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_invalid_events_total",
			Help: "Events that did not fit the current state and were answered with the last prompt.",
		},
		[]string{"state"},
	)

	duplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_duplicate_events_total",
			Help: "Redelivered events skipped by the dedup window.",
		},
		[]string{"channel"},
	)

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_upstream_errors_total",
			Help: "Failed calls to remote collaborators.",
		},
		[]string{"service", "op"},
	)

	geocodeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Geocoder lookups by result (found/not_found/error).",
		},
		[]string{"result"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncEvent(channel, kind string) {
	eventsTotal.WithLabelValues(norm(channel), norm(kind)).Inc()
}

func IncTransition(from, to string) {
	transitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func ObserveHandler(state string, d time.Duration) {
	handlerDuration.WithLabelValues(norm(state)).Observe(d.Seconds())
}

func IncInvalidEvent(state string) {
	invalidEventsTotal.WithLabelValues(norm(state)).Inc()
}

func IncDuplicateEvent(channel string) {
	duplicateEventsTotal.WithLabelValues(norm(channel)).Inc()
}

func IncUpstreamError(service, op string) {
	upstreamErrorsTotal.WithLabelValues(norm(service), norm(op)).Inc()
}

func IncGeocode(result string) {
	geocodeRequestsTotal.WithLabelValues(norm(result)).Inc()
}
