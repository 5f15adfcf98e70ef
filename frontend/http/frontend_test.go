package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/store"
	"github.com/coelacanth/tracker/store/memory"
	"github.com/coelacanth/tracker/tracker"
)

func newTestServer(t *testing.T, infoHash string) *httptest.Server {
	t.Helper()
	var h [20]byte
	copy(h[:], infoHash)

	s := memory.New(1)
	require.NoError(t, s.SaveTorrent(context.Background(), store.TorrentRecord{
		InfoHash: h,
		Length:   1000,
		Status:   store.TorrentActive,
	}))

	tr := tracker.New(s, tracker.Config{AnnounceInterval: 10 * time.Second})
	f := New(tr, Config{})
	return httptest.NewServer(f.srv.Handler)
}

func announceURL(base, infoHash, peerID string) string {
	q := url.Values{}
	q.Set("info_hash", infoHash)
	q.Set("peer_id", peerID)
	q.Set("port", "6881")
	q.Set("uploaded", "0")
	q.Set("downloaded", "0")
	q.Set("left", "1000")
	q.Set("ip", "192.0.2.5")
	return base + "/announce?" + q.Encode()
}

func rawID(b byte) string {
	id := make([]byte, 20)
	id[19] = b
	return string(id)
}

func TestAnnounceRouteReturnsBencodedResponse(t *testing.T) {
	infoHash := rawID(1)
	srv := newTestServer(t, infoHash)
	defer srv.Close()

	resp, err := http.Get(announceURL(srv.URL, infoHash, rawID(10)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestAnnounceRouteRejectsMissingParams(t *testing.T) {
	infoHash := rawID(2)
	srv := newTestServer(t, infoHash)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/announce?info_hash=" + url.QueryEscape(infoHash))
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 512)
	n, _ := resp.Body.Read(body)
	assert.True(t, strings.Contains(string(body[:n]), "failure reason"))
}

func TestScrapeRouteReturnsFileEntry(t *testing.T) {
	infoHash := rawID(3)
	srv := newTestServer(t, infoHash)
	defer srv.Close()

	q := url.Values{}
	q.Set("info_hash", infoHash)
	resp, err := http.Get(srv.URL + "/scrape?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded, err := bencode.Unmarshal(body)
	require.NoError(t, err)
	files, ok := decoded.(bencode.Dict)["files"].(bencode.Dict)
	require.True(t, ok)
	assert.Contains(t, files, infoHash)
}
