package filtering

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filtering_events_total",
		Help: "Events run through the filter lists, by event type.",
	}, []string{"event"})

	triggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filtering_filter_triggers_total",
		Help: "Filters that triggered, by filter list, list type and filter name.",
	}, []string{"list", "list_type", "filter"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filtering_alerts_total",
		Help: "Mod alerts sent, by event type and outcome.",
	}, []string{"event", "outcome"})

	listErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "filtering_list_errors_total",
		Help: "Filter list evaluations that failed or panicked.",
	}, []string{"list"})

	resolveSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "filtering_resolve_seconds",
		Help:    "Time spent resolving the actions of one event across all filter lists.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	offensivePending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "filtering_offensive_messages_pending",
		Help: "Messages waiting for their scheduled deletion.",
	})
)

func init() {
	prometheus.MustRegister(eventsTotal, triggersTotal, alertsTotal, listErrorsTotal, resolveSeconds, offensivePending)
}
