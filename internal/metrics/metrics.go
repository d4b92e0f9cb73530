// Package metrics exposes the pipeline's observability counters. Nothing
// in here is load-bearing for correctness; dropped samples and slow
// subscribers are counted, not treated as errors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PositionsAccepted       prometheus.Counter
	PositionsOutOfOrder     prometheus.Counter
	PositionsCoalesced      prometheus.Counter
	EventsPublished         prometheus.Counter
	SubscriberEventsDropped prometheus.Counter
	EvaluationsFailed       prometheus.Counter
}

// New registers the monitor's counters against the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PositionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_positions_accepted_total",
			Help: "Total number of position samples accepted for evaluation",
		}),
		PositionsOutOfOrder: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_positions_out_of_order_total",
			Help: "Total number of position samples dropped as out-of-order or duplicate",
		}),
		PositionsCoalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_positions_coalesced_total",
			Help: "Total number of position samples superseded in a device mailbox before evaluation",
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_events_published_total",
			Help: "Total number of geofence transition events published to the stream",
		}),
		SubscriberEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_subscriber_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		}),
		EvaluationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "geofence_monitor_evaluations_failed_total",
			Help: "Total number of (device, geofence) evaluations skipped due to evaluator errors",
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
