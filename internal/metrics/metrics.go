package metrics

import (
	"errors"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hookfeed/internal/ports"
)

// Webhook outcomes.
const (
	OutcomeStored       = "stored"
	OutcomeIgnored      = "ignored"
	OutcomeDuplicate    = "duplicate"
	OutcomeMalformed    = "malformed"
	OutcomeMissingEvent = "missing_event"
	OutcomeStoreError   = "store_error"
)

// event_type label values for deliveries outside the known event types.
const (
	EventTypeUnknown = "unknown"
	EventTypeOther   = "other"
)

var (
	// Webhook ingestion metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookfeed_webhooks_total",
			Help: "Total number of webhook deliveries by GitHub event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	// Storage metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookfeed_store_duration_seconds",
			Help:    "Duration of event store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookfeed_store_errors_total",
			Help: "Total number of event store errors by operation and kind",
		},
		[]string{"op", "kind"},
	)

	// Fan-out metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookfeed_events_published_total",
			Help: "Total number of stored events handed to the publisher",
		},
		[]string{"status"},
	)

	// Query metrics
	QueryEventsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookfeed_query_events_returned",
			Help:    "Number of events returned per recent-events query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

// StoreErrorKind labels a store error for StoreErrors.
func StoreErrorKind(err error) string {
	switch {
	case errors.Is(err, ports.ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, ports.ErrConnectionFailed):
		return "connection"
	default:
		return "other"
	}
}

// EventTypeLabel keeps the event_type label bounded: the header is caller
// controlled, so anything outside known collapses to EventTypeOther.
func EventTypeLabel(eventType string, known []string) string {
	if eventType == "" {
		return EventTypeUnknown
	}
	if slices.Contains(known, eventType) {
		return eventType
	}
	return EventTypeOther
}
