package metrics

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(responseDurationMilliseconds)
}

var responseDurationMilliseconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tracker_http_response_duration_milliseconds",
		Help:    "The duration of time it takes to receive and write a response to an HTTP request",
		Buckets: prometheus.ExponentialBuckets(9.375, 2, 10),
	},
	[]string{"action", "address_family", "error"},
)

// RecordResponseDuration records the duration of time it took to answer an
// announce or scrape request. failureReason is the client-safe failure
// message, if any; it is empty for a successful response.
func RecordResponseDuration(action string, ip net.IP, failureReason string, duration time.Duration) {
	addressFamily := "Unknown"
	switch {
	case ip == nil:
	case ip.To4() != nil:
		addressFamily = "IPv4"
	case ip.To16() != nil:
		addressFamily = "IPv6"
	}

	responseDurationMilliseconds.
		WithLabelValues(action, addressFamily, failureReason).
		Observe(float64(duration.Nanoseconds()) / float64(time.Millisecond))
}
