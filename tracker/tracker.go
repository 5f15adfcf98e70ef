// Package tracker implements the announce/scrape protocol handler and the
// swarm-state logic layered over a store.Store: parameter validation,
// peer liveness bookkeeping, seeder/leecher counting, and peer-list
// rendering in both dictionary and compact form.
package tracker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/coelacanth/tracker/bencode"
	"github.com/coelacanth/tracker/pkg/clientid"
	"github.com/coelacanth/tracker/pkg/log"
	"github.com/coelacanth/tracker/store"
)

// Config holds the tracker-wide settings a protocol handler needs.
type Config struct {
	// AnnounceInterval is the interval clients are told to wait between
	// announces; responses carry it as a whole number of seconds. Peers are
	// given twice this as their TTL.
	AnnounceInterval time.Duration
	// DefaultIP is used as a peer's address when the request carries no
	// "ip" override. When set, it takes precedence over the transport's
	// remote address.
	DefaultIP net.IP
	// CompactDefault selects compact-mode peer lists when the request
	// does not specify "compact" explicitly.
	CompactDefault bool
}

const defaultAnnounceInterval = 60 * time.Second

// Tracker answers announce and scrape requests against a persistence port.
type Tracker struct {
	store store.Store
	cfg   Config
}

// New returns a Tracker backed by s.
func New(s store.Store, cfg Config) *Tracker {
	if cfg.AnnounceInterval <= 0 {
		cfg.AnnounceInterval = defaultAnnounceInterval
	}
	return &Tracker{store: s, cfg: cfg}
}

var requiredAnnounceKeys = []string{"info_hash", "peer_id", "port", "uploaded", "downloaded", "left"}

// Announce validates params, updates the announcing peer's row, and
// returns the bencoded announce response. remoteAddr is the transport's
// best guess at the peer's address, used only when neither the request
// nor the tracker's configured default supplies one.
func (t *Tracker) Announce(ctx context.Context, params Params, remoteAddr net.IP) bencode.Dict {
	dict, err := t.announce(ctx, params, remoteAddr)
	if err != nil {
		return failureDict(err)
	}
	return dict
}

func (t *Tracker) announce(ctx context.Context, params Params, remoteAddr net.IP) (bencode.Dict, error) {
	var missing []string
	for _, key := range requiredAnnounceKeys {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, ClientError("Invalid get parameters; Missing: " + strings.Join(missing, ", "))
	}

	rawInfoHash, ok := params.requireBytes("info_hash", 20)
	if !ok {
		return nil, ClientError("Invalid length of info_hash.")
	}
	var infoHash [20]byte
	copy(infoHash[:], rawInfoHash)

	rawPeerID, ok := params.requireBytes("peer_id", 20)
	if !ok {
		return nil, ClientError("Invalid length of peer_id.")
	}
	var peerID [20]byte
	copy(peerID[:], rawPeerID)

	port, ok := params.requireUint("port")
	if !ok {
		return nil, ClientError("Invalid port value.")
	}
	uploaded, ok := params.requireUint("uploaded")
	if !ok {
		return nil, ClientError("Invalid uploaded value.")
	}
	downloaded, ok := params.requireUint("downloaded")
	if !ok {
		return nil, ClientError("Invalid downloaded value.")
	}
	left, ok := params.requireUint("left")
	if !ok {
		return nil, ClientError("Invalid left value.")
	}

	ip, err := t.effectiveIP(params, remoteAddr)
	if err != nil {
		return nil, err
	}

	has, err := t.store.HasTorrent(ctx, infoHash)
	if err != nil {
		return nil, internalFault("announce: has_torrent", rawPeerID, err)
	}
	if !has {
		return nil, ClientError("Info hash not found.")
	}

	event, err := ParseEvent(params["event"])
	if err != nil {
		return nil, err
	}

	ttl := 2 * t.cfg.AnnounceInterval
	if event == EventStopped {
		ttl = 0
	}

	status := store.PeerStatusUnspecified
	if event == EventCompleted {
		status = store.PeerStatusComplete
	}

	if err := t.store.SaveAnnounce(ctx, store.AnnounceParams{
		InfoHash:   infoHash,
		PeerID:     peerID,
		IP:         ip,
		Port:       uint16(port),
		Downloaded: downloaded,
		Uploaded:   uploaded,
		Left:       left,
		Status:     status,
		TTL:        &ttl,
	}); err != nil {
		return nil, internalFault("announce: save_announce", rawPeerID, err)
	}

	peers, err := t.store.GetPeers(ctx, infoHash, peerID)
	if err != nil {
		return nil, internalFault("announce: get_peers", rawPeerID, err)
	}

	stats, err := t.store.GetPeerStats(ctx, infoHash)
	if err != nil {
		return nil, internalFault("announce: get_peer_stats", rawPeerID, err)
	}

	compact := t.cfg.CompactDefault
	if raw, ok := params["compact"]; ok {
		compact = raw != "" && raw != "0"
	}
	noPeerID := params.bool("no_peer_id")

	dict := bencode.Dict{
		"interval":     t.cfg.AnnounceInterval,
		"min interval": t.cfg.AnnounceInterval / 2,
		"complete":     stats.Complete,
		"incomplete":   stats.Incomplete,
	}
	renderPeers(dict, peers, compact, noPeerID)

	return dict, nil
}

// effectiveIP picks the peer's address: the "ip" query parameter if
// present and a valid literal, else the tracker's configured default,
// else the transport's remote address.
func (t *Tracker) effectiveIP(params Params, remoteAddr net.IP) (net.IP, error) {
	if raw, ok := params["ip"]; ok {
		ip := net.ParseIP(raw)
		if ip == nil {
			return nil, ClientError("Invalid ip value.")
		}
		return ip, nil
	}
	if t.cfg.DefaultIP != nil {
		return t.cfg.DefaultIP, nil
	}
	if remoteAddr != nil {
		return remoteAddr, nil
	}
	return nil, ClientError("Invalid ip value.")
}

// Scrape validates params and returns the bencoded scrape response.
func (t *Tracker) Scrape(ctx context.Context, params Params) bencode.Dict {
	dict, err := t.scrape(ctx, params)
	if err != nil {
		return failureDict(err)
	}
	return dict
}

func (t *Tracker) scrape(ctx context.Context, params Params) (bencode.Dict, error) {
	rawInfoHash, ok := params.requireBytes("info_hash", 20)
	if !ok {
		return nil, ClientError("Invalid length of info_hash.")
	}
	var infoHash [20]byte
	copy(infoHash[:], rawInfoHash)

	has, err := t.store.HasTorrent(ctx, infoHash)
	if err != nil {
		return nil, internalFault("scrape: has_torrent", "", err)
	}
	if !has {
		return nil, ClientError("Info hash not found.")
	}

	stats, err := t.store.GetPeerStats(ctx, infoHash)
	if err != nil {
		return nil, internalFault("scrape: get_peer_stats", "", err)
	}

	downloads, err := t.store.GetDownloads(ctx, infoHash)
	if err != nil {
		return nil, internalFault("scrape: get_downloads", "", err)
	}

	return bencode.Dict{
		"files": bencode.Dict{
			string(infoHash[:]): bencode.Dict{
				"complete":   stats.Complete,
				"incomplete": stats.Incomplete,
				"downloaded": downloads,
			},
		},
	}, nil
}

// internalFaultError marks an error as an internal fault: the store or
// some other collaborator failed in a way that must never be echoed back
// to the client verbatim.
type internalFaultError struct {
	op  string
	err error
}

func (e *internalFaultError) Error() string { return e.op + ": " + e.err.Error() }
func (e *internalFaultError) Unwrap() error { return e.err }

// internalFault records the fault immediately, tagged with the requesting
// client's identity when one is known, and returns an error failureDict
// will translate into the generic message a client is allowed to see.
func internalFault(op, rawPeerID string, err error) error {
	fields := log.Fields{"op": op}
	if rawPeerID != "" {
		fields["client"] = clientid.New(rawPeerID)
	}
	log.Warn("tracker: internal fault", fields, log.Err(err))
	return &internalFaultError{op: op, err: err}
}

// failureDict converts any error from the validation pipeline into the
// bencoded {failure reason: ...} response BitTorrent clients expect.
// Only ClientError messages are safe to expose verbatim; anything else
// has already been logged by internalFault.
func failureDict(err error) bencode.Dict {
	var clientErr ClientError
	message := "Failed to announce/scrape because of internal server error."
	if errors.As(err, &clientErr) {
		message = clientErr.Error()
	}
	return bencode.Dict{"failure reason": message}
}
