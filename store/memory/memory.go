// Package memory implements store.Store as a sharded in-process map. It
// keeps no data on disk and is meant for tests and local experimentation,
// not production deployment: everything is lost on process exit and
// nothing is shared across processes.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coelacanth/tracker/store"
)

const defaultTTL = 365 * 24 * time.Hour

type peerEntry struct {
	addr       store.PeerAddr
	downloaded uint64
	uploaded   uint64
	left       uint64
	status     store.PeerStatus
	expires    time.Time
}

type torrentEntry struct {
	record store.TorrentRecord
	peers  map[[20]byte]*peerEntry
}

type shard struct {
	mu       sync.RWMutex
	torrents map[[20]byte]*torrentEntry
}

// Store is a sharded, mutex-guarded map from info-hash to torrent and peer
// state. Sharding by a hash of the info-hash spreads lock contention
// across swarms the way a production store would spread it across
// connections or partitions.
type Store struct {
	shards []*shard
	size   int32
}

// New returns a Store with numShards independently-locked shards.
func New(numShards int) *Store {
	if numShards < 1 {
		numShards = 1
	}
	s := &Store{shards: make([]*shard, numShards)}
	for i := range s.shards {
		s.shards[i] = &shard{torrents: make(map[[20]byte]*torrentEntry)}
	}
	return s
}

// Len reports the number of torrents currently held.
func (s *Store) Len() int { return int(atomic.LoadInt32(&s.size)) }

func (s *Store) shardFor(infoHash [20]byte) *shard {
	h := fnv.New32a()
	h.Write(infoHash[:])
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// SaveTorrent inserts or upserts a torrent record, keyed by info-hash.
func (s *Store) SaveTorrent(_ context.Context, record store.TorrentRecord) error {
	sh := s.shardFor(record.InfoHash)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, exists := sh.torrents[record.InfoHash]
	if !exists {
		atomic.AddInt32(&s.size, 1)
		entry = &torrentEntry{peers: make(map[[20]byte]*peerEntry)}
		sh.torrents[record.InfoHash] = entry
	}
	entry.record = record

	return nil
}

// GetTorrent returns the torrent record for infoHash, or nil if none exists.
func (s *Store) GetTorrent(_ context.Context, infoHash [20]byte) (*store.TorrentRecord, error) {
	sh := s.shardFor(infoHash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.torrents[infoHash]
	if !exists {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

// HasTorrent reports whether an active torrent with infoHash exists.
func (s *Store) HasTorrent(_ context.Context, infoHash [20]byte) (bool, error) {
	sh := s.shardFor(infoHash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.torrents[infoHash]
	return exists && entry.record.Status == store.TorrentActive, nil
}

// ListTorrents returns every active torrent's (info-hash, length).
func (s *Store) ListTorrents(_ context.Context) ([]store.TorrentSummary, error) {
	var out []store.TorrentSummary
	for _, sh := range s.shards {
		sh.mu.RLock()
		for infoHash, entry := range sh.torrents {
			if entry.record.Status == store.TorrentActive {
				out = append(out, store.TorrentSummary{InfoHash: infoHash, Length: entry.record.Length})
			}
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// SaveAnnounce upserts a peer row keyed by (InfoHash, PeerID). The status
// column is coalesced against any existing value when params.Status is
// store.PeerStatusUnspecified, matching the SQL-backed store's semantics.
func (s *Store) SaveAnnounce(_ context.Context, params store.AnnounceParams) error {
	sh := s.shardFor(params.InfoHash)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, exists := sh.torrents[params.InfoHash]
	if !exists {
		atomic.AddInt32(&s.size, 1)
		entry = &torrentEntry{
			record: store.TorrentRecord{InfoHash: params.InfoHash, Status: store.TorrentActive},
			peers:  make(map[[20]byte]*peerEntry),
		}
		sh.torrents[params.InfoHash] = entry
	}

	ttl := defaultTTL
	if params.TTL != nil {
		ttl = *params.TTL
	}

	peer, exists := entry.peers[params.PeerID]
	if !exists {
		status := store.PeerStatusIncomplete
		if params.Status == store.PeerStatusComplete {
			status = store.PeerStatusComplete
		}
		peer = &peerEntry{status: status}
		entry.peers[params.PeerID] = peer
	} else if params.Status != store.PeerStatusUnspecified {
		peer.status = params.Status
	}

	peer.addr = store.PeerAddr{PeerID: params.PeerID, IP: params.IP, Port: params.Port}
	peer.downloaded = params.Downloaded
	peer.uploaded = params.Uploaded
	peer.left = params.Left
	peer.expires = timeNow().Add(ttl)

	return nil
}

// GetPeers returns live peers of infoHash's swarm, excluding exclude.
func (s *Store) GetPeers(_ context.Context, infoHash [20]byte, exclude [20]byte) ([]store.PeerAddr, error) {
	sh := s.shardFor(infoHash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.torrents[infoHash]
	if !exists {
		return nil, nil
	}

	now := timeNow()
	var out []store.PeerAddr
	for peerID, peer := range entry.peers {
		if peerID == exclude {
			continue
		}
		if !peer.expires.After(now) {
			continue
		}
		out = append(out, peer.addr)
	}
	return out, nil
}

// GetPeerStats returns infoHash's live seeder/leecher counts.
func (s *Store) GetPeerStats(_ context.Context, infoHash [20]byte) (store.PeerStats, error) {
	sh := s.shardFor(infoHash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.torrents[infoHash]
	if !exists {
		return store.PeerStats{}, nil
	}

	now := timeNow()
	var stats store.PeerStats
	for _, peer := range entry.peers {
		if !peer.expires.After(now) {
			continue
		}
		if peer.left == 0 {
			stats.Complete++
		} else {
			stats.Incomplete++
		}
	}
	return stats, nil
}

// GetDownloads returns the lifetime count of peers ever marked complete
// for infoHash, irrespective of expiry.
func (s *Store) GetDownloads(_ context.Context, infoHash [20]byte) (int64, error) {
	sh := s.shardFor(infoHash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.torrents[infoHash]
	if !exists {
		return 0, nil
	}

	var count int64
	for _, peer := range entry.peers {
		if peer.status == store.PeerStatusComplete {
			count++
		}
	}
	return count, nil
}

// timeNow is a var so tests can shift the clock without sleeping.
var timeNow = time.Now
