package http

import (
	"net/http"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/pkg/log"
)

// writeBencode writes a tracker response dict to the client. The tracker
// package has already reduced any error to the standard
// {"failure reason": ...} shape, so there's nothing left to branch on here
// except a failure to write the response itself.
func writeBencode(w http.ResponseWriter, dict bencode.Dict) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if err := bencode.NewEncoder(w).Encode(dict); err != nil {
		log.Error("http: failed to write response", log.Err(err))
	}
}
