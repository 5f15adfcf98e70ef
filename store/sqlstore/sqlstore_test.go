package sqlstore

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coelacanth/tracker/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: "sqlite", DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if db, err := s.db.DB(); err == nil {
			db.Close()
		}
	})
	return s
}

func infoHash(b byte) [20]byte {
	var h [20]byte
	h[19] = b
	return h
}

func TestSaveAndGetTorrentRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(1)

	record := store.TorrentRecord{
		InfoHash:     h,
		Length:       12345,
		PieceLength:  1024,
		Name:         "example.iso",
		AnnounceList: [][]string{{"http://a/announce"}, {"http://b/announce"}},
		URLList:      []string{"http://mirror/example.iso"},
		Nodes:        []store.Node{{Host: "1.2.3.4", Port: 6881}},
		Private:      true,
		CreatedBy:    "tracker/1.0",
	}
	require.NoError(t, s.SaveTorrent(ctx, record))

	got, err := s.GetTorrent(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Length, got.Length)
	assert.Equal(t, record.AnnounceList, got.AnnounceList)
	assert.Equal(t, record.URLList, got.URLList)
	assert.Equal(t, record.Nodes, got.Nodes)
	assert.True(t, got.Private)

	missing, err := s.GetTorrent(ctx, infoHash(99))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveTorrentUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(2)

	require.NoError(t, s.SaveTorrent(ctx, store.TorrentRecord{InfoHash: h, Length: 1}))
	require.NoError(t, s.SaveTorrent(ctx, store.TorrentRecord{InfoHash: h, Length: 2}))

	got, err := s.GetTorrent(ctx, h)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Length)
}

func TestHasTorrentRequiresActiveStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(3)

	require.NoError(t, s.SaveTorrent(ctx, store.TorrentRecord{InfoHash: h, Status: store.TorrentInactive}))
	has, err := s.HasTorrent(ctx, h)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSaveAnnounceNeverRegressesCompleteStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(4)
	peer := infoHash(40)

	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{
		InfoHash: h, PeerID: peer, IP: net.ParseIP("203.0.113.1"), Port: 6881,
		Status: store.PeerStatusComplete,
	}))
	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{
		InfoHash: h, PeerID: peer, IP: net.ParseIP("203.0.113.1"), Port: 6881,
		Left: 1000,
	}))

	downloads, err := s.GetDownloads(ctx, h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, downloads)
}

func TestGetPeersExcludesRequesterAndExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(5)
	self := infoHash(50)
	other := infoHash(51)
	expired := infoHash(52)

	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{InfoHash: h, PeerID: self, IP: net.ParseIP("10.0.0.1"), Port: 1}))
	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{InfoHash: h, PeerID: other, IP: net.ParseIP("10.0.0.2"), Port: 2}))

	zero := time.Duration(0)
	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{InfoHash: h, PeerID: expired, IP: net.ParseIP("10.0.0.3"), Port: 3, TTL: &zero}))

	peers, err := s.GetPeers(ctx, h, self)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, other, peers[0].PeerID)
}

func TestGetPeerStatsUsesBytesLeft(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := infoHash(6)

	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{InfoHash: h, PeerID: infoHash(60), Left: 0}))
	require.NoError(t, s.SaveAnnounce(ctx, store.AnnounceParams{InfoHash: h, PeerID: infoHash(61), Left: 500}))

	stats, err := s.GetPeerStats(ctx, h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Complete)
	assert.EqualValues(t, 1, stats.Incomplete)
}

func TestListTorrentsOnlyReturnsActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTorrent(ctx, store.TorrentRecord{InfoHash: infoHash(7), Length: 10, Status: store.TorrentActive}))
	require.NoError(t, s.SaveTorrent(ctx, store.TorrentRecord{InfoHash: infoHash(8), Length: 20, Status: store.TorrentInactive}))

	summaries, err := s.ListTorrents(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, infoHash(7), summaries[0].InfoHash)
}
