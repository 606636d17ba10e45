package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_delivered_total",
		Help: "Push notifications accepted by the transport.",
	})
	prunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_pruned_total",
		Help: "Subscriptions deleted after a terminal transport failure.",
	})
	transientFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_transient_failures_total",
		Help: "Deliveries that failed with a retryable transport error.",
	})
)
