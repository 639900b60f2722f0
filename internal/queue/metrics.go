package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hjemme_delivery_checked_total",
		Help: "Queue records claimed by delivery sweeps.",
	})
	metricSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hjemme_delivery_sent_total",
		Help: "Device messages accepted by the push provider.",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hjemme_delivery_dropped_total",
		Help: "Device messages dropped for unregistered or invalid tokens.",
	})
	metricRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hjemme_delivery_retried_total",
		Help: "Queue records rescheduled after a transient failure.",
	})
	metricDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hjemme_delivery_dead_lettered_total",
		Help: "Queue records moved to the dead-letter store.",
	})
	metricSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hjemme_delivery_sweep_duration_seconds",
		Help:    "Wall time of a full delivery sweep.",
		Buckets: prometheus.DefBuckets,
	})
)
