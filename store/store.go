// Package store defines the persistence port the tracker core depends on:
// a narrow interface for reading and writing torrent and peer records.
// Torrent and peer records are owned exclusively by implementations of
// this interface; every other component reads them only through it.
package store

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrStoreUnavailable is returned when the underlying persistence layer
// could not complete an operation after its retry policy was exhausted.
var ErrStoreUnavailable = errors.New("store: unavailable")

// TorrentStatus distinguishes torrents that should be served for
// discovery from ones that have been withdrawn.
type TorrentStatus int

const (
	// TorrentActive torrents are visible to HasTorrent/ListTorrents and
	// may be announced/scraped against.
	TorrentActive TorrentStatus = iota
	// TorrentInactive torrents are filtered out of discovery.
	TorrentInactive
)

// Node is a DHT bootstrap node.
type Node struct {
	Host string
	Port int
}

// TorrentRecord is the plain, persistence-owned representation of a
// torrent. Every field is populated directly by callers; there are no
// setters, per the "magic setters" redesign note.
type TorrentRecord struct {
	InfoHash     [20]byte
	PieceLength  int64
	Length       int64
	Name         string
	Path         string
	Pieces       []byte
	AnnounceList [][]string
	URLList      []string
	Nodes        []Node
	Private      bool
	CreatedBy    string
	Status       TorrentStatus
}

// TorrentSummary is the lightweight (info-hash, length) pair returned by
// ListTorrents.
type TorrentSummary struct {
	InfoHash [20]byte
	Length   int64
}

// PeerStatus is the lifetime completion marker stored on a peer row.
// PeerStatusUnspecified is not a storable value on its own; it tells
// SaveAnnounce to leave the stored status column untouched (coalesce
// against the existing value) rather than overwrite it.
type PeerStatus int

const (
	// PeerStatusUnspecified leaves any existing stored status alone. A
	// brand-new row defaults to PeerStatusIncomplete when created with
	// this value.
	PeerStatusUnspecified PeerStatus = iota
	PeerStatusIncomplete
	PeerStatusComplete
)

// AnnounceParams is the input to SaveAnnounce: the upsert key
// (InfoHash, PeerID) plus the columns an announce updates.
//
// TTL controls the peer's expiry: nil selects the one-year default, a
// zero duration causes immediate expiry (the peer is not live even to
// the announce that just wrote it), and any other duration expires the
// peer that long from now.
type AnnounceParams struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	IP         net.IP
	Port       uint16
	Downloaded uint64
	Uploaded   uint64
	Left       uint64
	Status     PeerStatus
	TTL        *time.Duration
}

// PeerAddr is a single peer's connection details, as returned by GetPeers.
type PeerAddr struct {
	PeerID [20]byte
	IP     net.IP
	Port   uint16
}

// PeerStats holds a swarm's live seeder/leecher counts.
type PeerStats struct {
	Complete   int64
	Incomplete int64
}

// Store is the persistence port the tracker core depends on.
type Store interface {
	// SaveTorrent inserts or upserts a torrent record, keyed by info-hash.
	SaveTorrent(ctx context.Context, record TorrentRecord) error

	// GetTorrent returns the torrent record for infoHash, or nil if none
	// exists.
	GetTorrent(ctx context.Context, infoHash [20]byte) (*TorrentRecord, error)

	// HasTorrent reports whether an active torrent with infoHash exists.
	HasTorrent(ctx context.Context, infoHash [20]byte) (bool, error)

	// ListTorrents returns every active torrent's (info-hash, length).
	ListTorrents(ctx context.Context) ([]TorrentSummary, error)

	// SaveAnnounce upserts a peer row keyed by (InfoHash, PeerID).
	SaveAnnounce(ctx context.Context, params AnnounceParams) error

	// GetPeers returns live peers of infoHash's swarm, excluding exclude.
	GetPeers(ctx context.Context, infoHash [20]byte, exclude [20]byte) ([]PeerAddr, error)

	// GetPeerStats returns infoHash's live seeder/leecher counts.
	GetPeerStats(ctx context.Context, infoHash [20]byte) (PeerStats, error)

	// GetDownloads returns the lifetime count of peers ever marked
	// complete for infoHash, irrespective of expiry.
	GetDownloads(ctx context.Context, infoHash [20]byte) (int64, error)
}

// ForkResetter is implemented by Stores whose underlying driver holds a
// connection that must be dropped and re-established after fork(2). Only
// pre-fork deployments need to call it; runtimes without fork may ignore
// it entirely.
type ForkResetter interface {
	ResetAfterFork() error
}
