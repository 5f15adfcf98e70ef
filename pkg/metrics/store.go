package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(storeLatencySeconds, storeErrorsTotal)
}

var storeLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tracker_store_operation_latency_seconds",
		Help:    "The latency of persistence-port operations, by operation name",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

var storeErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tracker_store_errors_total",
		Help: "The count of persistence-port operations that returned an error",
	},
	[]string{"op"},
)

// ObserveStoreOperation records the latency of a persistence-port call named
// op, and increments the error counter for op when err is non-nil.
func ObserveStoreOperation(op string, err error, duration time.Duration) {
	storeLatencySeconds.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		storeErrorsTotal.WithLabelValues(op).Inc()
	}
}
