package http

import (
	"net"
	"net/http"
	"strings"

	"github.com/coelacanth/tracker/tracker"
)

// paramsFromQuery flattens an HTTP request's query string into the map the
// tracker package expects, lower-casing keys and keeping the first value
// of any parameter repeated more than once. url.Values already leaves
// percent-decoded values as raw byte strings, which is what info_hash and
// peer_id need.
func paramsFromQuery(r *http.Request) tracker.Params {
	query := r.URL.Query()
	params := make(tracker.Params, len(query))
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		params[strings.ToLower(key)] = values[0]
	}
	return params
}

// remoteIP determines the IP address of the client making the request,
// used as a fallback when the request carries no explicit "ip" parameter.
func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}
