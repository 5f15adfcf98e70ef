package http

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coelacanth/tracker/bencode"
)

func TestWriteBencodeEncodesFailureReason(t *testing.T) {
	var table = []struct {
		reason, expected string
	}{
		{"hello world", "d14:failure reason11:hello worlde"},
		{"what's up", "d14:failure reason9:what's upe"},
	}

	for _, tt := range table {
		r := httptest.NewRecorder()
		writeBencode(r, bencode.Dict{"failure reason": tt.reason})
		assert.Equal(t, tt.expected, r.Body.String())
	}
}

func TestWriteBencodeSetsContentType(t *testing.T) {
	r := httptest.NewRecorder()
	writeBencode(r, bencode.Dict{"failure reason": "something is missing"})
	assert.Equal(t, "text/plain", r.Header().Get("Content-Type"))
	assert.Equal(t, "d14:failure reason20:something is missinge", r.Body.String())
}
