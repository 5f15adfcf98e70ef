// Package sqlstore implements store.Store on top of GORM, supporting
// SQLite and PostgreSQL. Torrent metadata that has no natural column
// shape — announce tiers, webseed URLs, DHT nodes — is serialized to YAML
// and stored in a binary column, the same way the rest of this codebase
// treats configuration as YAML rather than inventing a bespoke format.
package sqlstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/coelacanth/tracker/pkg/metrics"
	"github.com/coelacanth/tracker/store"
)

const defaultTTL = 365 * 24 * time.Hour

// Config selects the SQL backend and connection string.
type Config struct {
	// Driver is either "sqlite" or "postgres".
	Driver string
	// DSN is passed to the underlying driver unmodified.
	DSN string
}

// Store is a GORM-backed store.Store. It satisfies store.ForkResetter so
// that pre-fork deployments can drop and re-establish its connection
// pool after fork(2).
type Store struct {
	cfg Config
	db  *gorm.DB
}

// Open connects to the configured backend and migrates the torrent/peer
// schema.
func Open(cfg Config) (*Store, error) {
	s := &Store{cfg: cfg}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) connect() error {
	dialector, err := s.dialector()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return pkgerrors.Wrap(err, "sqlstore: connect")
	}

	if err := db.AutoMigrate(&torrentModel{}, &peerModel{}); err != nil {
		return pkgerrors.Wrap(err, "sqlstore: migrate")
	}

	s.db = db
	return nil
}

func (s *Store) dialector() (gorm.Dialector, error) {
	switch s.cfg.Driver {
	case "sqlite", "":
		return sqlite.Open(s.cfg.DSN), nil
	case "postgres":
		return postgres.Open(s.cfg.DSN), nil
	default:
		return nil, pkgerrors.Errorf("sqlstore: unknown driver %q", s.cfg.Driver)
	}
}

// ResetAfterFork drops and re-establishes the connection pool. Deployments
// that never fork(2) do not need to call it.
func (s *Store) ResetAfterFork() error {
	return s.reconnect()
}

func (s *Store) reconnect() error {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
	return s.connect()
}

// withRetry runs fn against the current connection, and on a connection-
// lost error reconnects once and retries fn exactly once more. A second
// failure is returned wrapped in store.ErrStoreUnavailable. op names the
// calling operation for the store latency/error metrics.
func (s *Store) withRetry(op string, fn func(*gorm.DB) error) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStoreOperation(op, err, time.Since(start)) }()

	err = fn(s.db)
	if err == nil || !isConnectionLost(err) {
		return err
	}

	if rerr := s.reconnect(); rerr != nil {
		err = pkgerrors.Wrap(err, "sqlstore: reconnect after connection loss failed")
		return err
	}

	if err = fn(s.db); err != nil {
		err = pkgerrors.Wrap(store.ErrStoreUnavailable, err.Error())
		return err
	}
	return nil
}

func isConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type torrentModel struct {
	InfoHash     []byte `gorm:"primaryKey;column:info_hash"`
	Length       int64
	PieceLength  int64  `gorm:"column:pieces_length"`
	Pieces       []byte
	Name         string
	Path         string
	Private      bool
	AnnounceList []byte `gorm:"column:announce_list"`
	Nodes        []byte
	URLList      []byte `gorm:"column:url_list"`
	CreatedBy    string `gorm:"column:created_by"`
	Status       string
}

func (torrentModel) TableName() string { return "torrents" }

type peerModel struct {
	InfoHash        []byte `gorm:"primaryKey;column:info_hash"`
	PeerID          []byte `gorm:"primaryKey;column:peer_id"`
	IPAddress       []byte `gorm:"column:ip_address"`
	Port            uint16
	BytesDownloaded uint64 `gorm:"column:bytes_downloaded"`
	BytesUploaded   uint64 `gorm:"column:bytes_uploaded"`
	BytesLeft       uint64 `gorm:"column:bytes_left"`
	Status          string
	Expires         time.Time
}

func (peerModel) TableName() string { return "peers" }

const (
	statusActive   = "active"
	statusInactive = "inactive"

	statusComplete   = "complete"
	statusIncomplete = "incomplete"
)

func torrentStatusString(status store.TorrentStatus) string {
	if status == store.TorrentInactive {
		return statusInactive
	}
	return statusActive
}

func torrentStatusFromString(s string) store.TorrentStatus {
	if s == statusInactive {
		return store.TorrentInactive
	}
	return store.TorrentActive
}

func peerStatusString(status store.PeerStatus) string {
	if status == store.PeerStatusComplete {
		return statusComplete
	}
	return statusIncomplete
}

func marshalYAML(v interface{}) []byte {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalYAMLStrings(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var out []string
	_ = yaml.Unmarshal(b, &out)
	return out
}

func unmarshalYAMLTiers(b []byte) [][]string {
	if len(b) == 0 {
		return nil
	}
	var out [][]string
	_ = yaml.Unmarshal(b, &out)
	return out
}

func unmarshalYAMLNodes(b []byte) []store.Node {
	if len(b) == 0 {
		return nil
	}
	var out []store.Node
	_ = yaml.Unmarshal(b, &out)
	return out
}

func toTorrentModel(r store.TorrentRecord) torrentModel {
	return torrentModel{
		InfoHash:     r.InfoHash[:],
		Length:       r.Length,
		PieceLength:  r.PieceLength,
		Pieces:       r.Pieces,
		Name:         r.Name,
		Path:         r.Path,
		Private:      r.Private,
		AnnounceList: marshalYAML(r.AnnounceList),
		Nodes:        marshalYAML(r.Nodes),
		URLList:      marshalYAML(r.URLList),
		CreatedBy:    r.CreatedBy,
		Status:       torrentStatusString(r.Status),
	}
}

func fromTorrentModel(m torrentModel) store.TorrentRecord {
	var infoHash [20]byte
	copy(infoHash[:], m.InfoHash)

	return store.TorrentRecord{
		InfoHash:     infoHash,
		Length:       m.Length,
		PieceLength:  m.PieceLength,
		Pieces:       m.Pieces,
		Name:         m.Name,
		Path:         m.Path,
		Private:      m.Private,
		AnnounceList: unmarshalYAMLTiers(m.AnnounceList),
		Nodes:        unmarshalYAMLNodes(m.Nodes),
		URLList:      unmarshalYAMLStrings(m.URLList),
		CreatedBy:    m.CreatedBy,
		Status:       torrentStatusFromString(m.Status),
	}
}

// SaveTorrent inserts or upserts a torrent record, keyed by info-hash.
func (s *Store) SaveTorrent(ctx context.Context, record store.TorrentRecord) error {
	row := toTorrentModel(record)
	return s.withRetry("save_torrent", func(db *gorm.DB) error {
		return db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "info_hash"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
}

// GetTorrent returns the torrent record for infoHash, or nil if none exists.
func (s *Store) GetTorrent(ctx context.Context, infoHash [20]byte) (*store.TorrentRecord, error) {
	var row torrentModel
	err := s.withRetry("get_torrent", func(db *gorm.DB) error {
		return db.WithContext(ctx).Where("info_hash = ?", infoHash[:]).Take(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromTorrentModel(row)
	return &record, nil
}

// HasTorrent reports whether an active torrent with infoHash exists.
func (s *Store) HasTorrent(ctx context.Context, infoHash [20]byte) (bool, error) {
	var count int64
	err := s.withRetry("has_torrent", func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&torrentModel{}).
			Where("info_hash = ? AND status = ?", infoHash[:], statusActive).
			Count(&count).Error
	})
	return count > 0, err
}

// ListTorrents returns every active torrent's (info-hash, length).
func (s *Store) ListTorrents(ctx context.Context) ([]store.TorrentSummary, error) {
	var rows []torrentModel
	err := s.withRetry("list_torrents", func(db *gorm.DB) error {
		return db.WithContext(ctx).Select("info_hash", "length").
			Where("status = ?", statusActive).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.TorrentSummary, len(rows))
	for i, row := range rows {
		var infoHash [20]byte
		copy(infoHash[:], row.InfoHash)
		out[i] = store.TorrentSummary{InfoHash: infoHash, Length: row.Length}
	}
	return out, nil
}

// SaveAnnounce upserts a peer row keyed by (InfoHash, PeerID). The status
// column is only included in the update clause when params.Status is
// explicit, leaving any previously-stored status untouched otherwise —
// once a peer is marked complete, a later announce cannot regress it.
func (s *Store) SaveAnnounce(ctx context.Context, params store.AnnounceParams) error {
	var ip []byte
	if params.IP != nil {
		if v4 := params.IP.To4(); v4 != nil {
			ip = v4
		} else {
			ip = params.IP.To16()
		}
	}

	ttl := defaultTTL
	if params.TTL != nil {
		ttl = *params.TTL
	}

	row := peerModel{
		InfoHash:        params.InfoHash[:],
		PeerID:          params.PeerID[:],
		IPAddress:       ip,
		Port:            params.Port,
		BytesDownloaded: params.Downloaded,
		BytesUploaded:   params.Uploaded,
		BytesLeft:       params.Left,
		Status:          peerStatusString(params.Status),
		Expires:         time.Now().Add(ttl),
	}

	updates := map[string]interface{}{
		"ip_address":       row.IPAddress,
		"port":             row.Port,
		"bytes_downloaded": row.BytesDownloaded,
		"bytes_uploaded":   row.BytesUploaded,
		"bytes_left":       row.BytesLeft,
		"expires":          row.Expires,
	}
	if params.Status != store.PeerStatusUnspecified {
		updates["status"] = row.Status
	}

	return s.withRetry("save_announce", func(db *gorm.DB) error {
		return db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "info_hash"}, {Name: "peer_id"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&row).Error
	})
}

// GetPeers returns live peers of infoHash's swarm, excluding exclude.
func (s *Store) GetPeers(ctx context.Context, infoHash [20]byte, exclude [20]byte) ([]store.PeerAddr, error) {
	var rows []peerModel
	err := s.withRetry("get_peers", func(db *gorm.DB) error {
		return db.WithContext(ctx).
			Where("info_hash = ? AND peer_id <> ? AND expires > ?", infoHash[:], exclude[:], time.Now()).
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.PeerAddr, len(rows))
	for i, row := range rows {
		var peerID [20]byte
		copy(peerID[:], row.PeerID)
		out[i] = store.PeerAddr{PeerID: peerID, IP: net.IP(row.IPAddress), Port: row.Port}
	}
	return out, nil
}

// GetPeerStats returns infoHash's live seeder/leecher counts, derived from
// each peer's current bytes-left rather than its stored status column.
func (s *Store) GetPeerStats(ctx context.Context, infoHash [20]byte) (store.PeerStats, error) {
	var stats store.PeerStats
	err := s.withRetry("get_peer_stats", func(db *gorm.DB) error {
		if err := db.WithContext(ctx).Model(&peerModel{}).
			Where("info_hash = ? AND expires > ? AND bytes_left = 0", infoHash[:], time.Now()).
			Count(&stats.Complete).Error; err != nil {
			return err
		}
		return db.WithContext(ctx).Model(&peerModel{}).
			Where("info_hash = ? AND expires > ? AND bytes_left <> 0", infoHash[:], time.Now()).
			Count(&stats.Incomplete).Error
	})
	return stats, err
}

// GetDownloads returns the lifetime count of peers ever marked complete
// for infoHash, irrespective of expiry.
func (s *Store) GetDownloads(ctx context.Context, infoHash [20]byte) (int64, error) {
	var count int64
	err := s.withRetry("get_downloads", func(db *gorm.DB) error {
		return db.WithContext(ctx).Model(&peerModel{}).
			Where("info_hash = ? AND status = ?", infoHash[:], statusComplete).
			Count(&count).Error
	})
	return count, err
}

var _ store.Store = (*Store)(nil)
var _ store.ForkResetter = (*Store)(nil)
