package tracker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/store"
	"github.com/coelacanth/tracker/store/memory"
)

func newTestTracker(t *testing.T, infoHash [20]byte) (*Tracker, store.Store) {
	t.Helper()
	s := memory.New(1)
	require.NoError(t, s.SaveTorrent(context.Background(), store.TorrentRecord{
		InfoHash: infoHash,
		Length:   1000,
		Status:   store.TorrentActive,
	}))
	return New(s, Config{AnnounceInterval: 10 * time.Second}), s
}

func rawID(b byte) string {
	id := make([]byte, 20)
	id[19] = b
	return string(id)
}

func baseAnnounceParams(infoHash string, peerID string) Params {
	return Params{
		"info_hash":  infoHash,
		"peer_id":    peerID,
		"port":       "6881",
		"uploaded":   "0",
		"downloaded": "0",
		"left":       "1000",
		"ip":         "192.0.2.5",
	}
}

func TestAnnounceMissingParameter(t *testing.T) {
	infoHash := rawID(1)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	params := baseAnnounceParams(infoHash, rawID(10))
	delete(params, "left")

	resp := tr.Announce(context.Background(), params, nil)
	assert.Equal(t, "Invalid get parameters; Missing: left", resp["failure reason"])
}

func TestAnnounceInvalidInfoHashLength(t *testing.T) {
	var h [20]byte
	tr, _ := newTestTracker(t, h)

	params := baseAnnounceParams("short", rawID(10))
	resp := tr.Announce(context.Background(), params, nil)
	assert.Equal(t, "Invalid length of info_hash.", resp["failure reason"])
}

func TestAnnounceInvalidPort(t *testing.T) {
	infoHash := rawID(2)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	params := baseAnnounceParams(infoHash, rawID(10))
	params["port"] = "-1"
	resp := tr.Announce(context.Background(), params, nil)
	assert.Equal(t, "Invalid port value.", resp["failure reason"])
}

func TestAnnounceUnknownTorrent(t *testing.T) {
	var h [20]byte
	tr, _ := newTestTracker(t, h)

	params := baseAnnounceParams(rawID(99), rawID(10))
	resp := tr.Announce(context.Background(), params, nil)
	assert.Equal(t, "Info hash not found.", resp["failure reason"])
}

func TestAnnounceExcludesSelfFromPeerList(t *testing.T) {
	infoHash := rawID(3)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	self := rawID(11)
	resp := tr.Announce(context.Background(), baseAnnounceParams(infoHash, self), nil)
	require.NotContains(t, resp, "failure reason")

	peers, ok := resp["peers"].(bencode.List)
	require.True(t, ok)
	for _, p := range peers {
		peerDict := p.(bencode.Dict)
		assert.NotEqual(t, self, peerDict["peer id"])
	}
}

func TestStoppedEventExpiresPeerImmediately(t *testing.T) {
	infoHash := rawID(4)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	peerA := rawID(20)
	peerB := rawID(21)
	peerC := rawID(22)

	paramsA := baseAnnounceParams(infoHash, peerA)
	paramsA["event"] = "started"
	respA := tr.Announce(context.Background(), paramsA, nil)
	require.NotContains(t, respA, "failure reason")

	paramsB := baseAnnounceParams(infoHash, peerB)
	paramsB["event"] = "stopped"
	respB := tr.Announce(context.Background(), paramsB, nil)
	require.NotContains(t, respB, "failure reason")

	paramsC := baseAnnounceParams(infoHash, peerC)
	respC := tr.Announce(context.Background(), paramsC, nil)
	require.NotContains(t, respC, "failure reason")

	peers, ok := respC["peers"].(bencode.List)
	require.True(t, ok)

	var seenA, seenB bool
	for _, p := range peers {
		peerDict := p.(bencode.Dict)
		switch peerDict["peer id"] {
		case peerA:
			seenA = true
		case peerB:
			seenB = true
		}
	}
	assert.True(t, seenA, "peer A (started) should be visible")
	assert.False(t, seenB, "peer B (stopped) should not be visible")

	assert.EqualValues(t, 2, respC["complete"].(int64)+respC["incomplete"].(int64), "peer B should not count toward complete+incomplete")
}

func TestCompactModeEncodesSingleIPv4Peer(t *testing.T) {
	infoHash := rawID(5)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	seeder := rawID(30)
	seederParams := baseAnnounceParams(infoHash, seeder)
	seederParams["ip"] = "192.0.2.5"
	seederParams["port"] = "6881"
	require.NotContains(t, tr.Announce(context.Background(), seederParams, nil), "failure reason")

	requester := rawID(31)
	requesterParams := baseAnnounceParams(infoHash, requester)
	requesterParams["compact"] = "1"
	resp := tr.Announce(context.Background(), requesterParams, nil)
	require.NotContains(t, resp, "failure reason")

	peers, ok := resp["peers"].(string)
	require.True(t, ok)
	assert.Equal(t, []byte{0xC0, 0x00, 0x02, 0x05, 0x1A, 0xE1}, []byte(peers))
}

func TestCompletedEventPromotesStatusAndDownloadsPersist(t *testing.T) {
	infoHash := rawID(6)
	var h [20]byte
	copy(h[:], infoHash)
	tr, s := newTestTracker(t, h)

	peer := rawID(40)
	params := baseAnnounceParams(infoHash, peer)
	params["event"] = "completed"
	params["left"] = "0"
	require.NotContains(t, tr.Announce(context.Background(), params, nil), "failure reason")

	// A later announce with no event must not regress the stored status.
	params2 := baseAnnounceParams(infoHash, peer)
	params2["left"] = "0"
	require.NotContains(t, tr.Announce(context.Background(), params2, nil), "failure reason")

	downloads, err := s.GetDownloads(context.Background(), h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, downloads)
}

func TestScrapeUnknownTorrent(t *testing.T) {
	var h [20]byte
	tr, _ := newTestTracker(t, h)

	resp := tr.Scrape(context.Background(), Params{"info_hash": rawID(77)})
	assert.Equal(t, "Info hash not found.", resp["failure reason"])
}

func TestScrapeReturnsFileEntry(t *testing.T) {
	infoHash := rawID(7)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	peer := rawID(50)
	params := baseAnnounceParams(infoHash, peer)
	require.NotContains(t, tr.Announce(context.Background(), params, nil), "failure reason")

	resp := tr.Scrape(context.Background(), Params{"info_hash": infoHash})
	files, ok := resp["files"].(bencode.Dict)
	require.True(t, ok)
	entry, ok := files[infoHash].(bencode.Dict)
	require.True(t, ok)
	assert.EqualValues(t, 0, entry["complete"])
	assert.EqualValues(t, 1, entry["incomplete"])
}

func TestEffectiveIPFallsBackToRemoteAddr(t *testing.T) {
	infoHash := rawID(8)
	var h [20]byte
	copy(h[:], infoHash)
	tr, _ := newTestTracker(t, h)

	peer := rawID(60)
	params := baseAnnounceParams(infoHash, peer)
	delete(params, "ip")

	resp := tr.Announce(context.Background(), params, net.ParseIP("198.51.100.9"))
	require.NotContains(t, resp, "failure reason")
}
