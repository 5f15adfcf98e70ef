package http

import (
	"net"
	"time"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/pkg/metrics"
)

// metricsRecordResponse records the duration of an announce or scrape
// response into the shared response-duration histogram, pulling the
// client-facing failure reason (if any) straight out of the response dict
// rather than threading a separate error value through the route handler.
func metricsRecordResponse(action string, ip net.IP, dict bencode.Dict, duration time.Duration) {
	var reason string
	if v, ok := dict["failure reason"].(string); ok {
		reason = v
	}
	metrics.RecordResponseDuration(action, ip, reason, duration)
}
