// Package torrent implements the torrent construction pipeline: splitting
// a file into fixed-size pieces, hashing each piece, deriving the
// info-hash, and assembling both the client-facing .torrent blob and the
// record handed to the persistence port.
package torrent

import (
	"crypto/sha1"
	"sync"

	"github.com/coelacanth/tracker/bencode"
)

// Status distinguishes torrents that should be served for discovery from
// ones that have been withdrawn.
type Status int

const (
	// StatusActive torrents are returned by list/has queries and may be
	// announced/scraped against.
	StatusActive Status = iota
	// StatusInactive torrents are filtered out of discovery.
	StatusInactive
)

// Node is a DHT bootstrap node, expressed as a [host, port] pair.
type Node struct {
	Host string
	Port int
}

// Torrent is a single-file torrent under construction. It holds a piece
// size and a slicer over the underlying file, and lazily derives its
// pieces and info-hash on first read; once derived, those attributes are
// memoized. Any attribute a caller supplies up front is never
// recomputed.
type Torrent struct {
	mu sync.Mutex

	slicer    *Slicer
	pieceSize int64

	path   string
	name   string
	length int64

	pieces      []byte
	infoHash    [20]byte
	infoHashSet bool

	announceList [][]string
	urlList      []string
	nodes        []Node
	private      bool
	createdBy    string
	status       Status
}

// Option configures optional, pre-computed attributes of a Torrent so that
// they need not be lazily derived.
type Option func(*Torrent)

// WithPieces supplies a pre-computed concatenation of piece hashes.
func WithPieces(pieces []byte) Option {
	return func(t *Torrent) { t.pieces = pieces }
}

// WithInfoHash supplies a pre-computed info-hash.
func WithInfoHash(hash [20]byte) Option {
	return func(t *Torrent) {
		t.infoHash = hash
		t.infoHashSet = true
	}
}

// WithAnnounceList supplies the torrent's internal tracker tiers.
func WithAnnounceList(tiers [][]string) Option {
	return func(t *Torrent) { t.announceList = tiers }
}

// WithURLList supplies webseed URLs.
func WithURLList(urls []string) Option {
	return func(t *Torrent) { t.urlList = urls }
}

// WithNodes supplies DHT bootstrap nodes.
func WithNodes(nodes []Node) Option {
	return func(t *Torrent) { t.nodes = nodes }
}

// WithPrivate marks the torrent private, suppressing DHT/PEX in compliant
// clients.
func WithPrivate(private bool) Option {
	return func(t *Torrent) { t.private = private }
}

// WithCreatedBy supplies the "created by" metadata field.
func WithCreatedBy(createdBy string) Option {
	return func(t *Torrent) { t.createdBy = createdBy }
}

// WithStatus overrides the default active status.
func WithStatus(status Status) Option {
	return func(t *Torrent) { t.status = status }
}

// New constructs a Torrent for file, splitting it into pieces of size
// pieceSize. pieceSize must be positive.
func New(file *File, pieceSize int64, opts ...Option) (*Torrent, error) {
	if pieceSize <= 0 {
		return nil, ErrInvalidPieceSize
	}

	t := &Torrent{
		slicer:    NewSlicer(file),
		pieceSize: pieceSize,
		path:      file.Path(),
		name:      file.Name(),
		length:    file.Size(),
		status:    StatusActive,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Path returns the torrent's absolute source path.
func (t *Torrent) Path() string { return t.path }

// Name returns the torrent's file name.
func (t *Torrent) Name() string { return t.name }

// Length returns the total byte length of the file.
func (t *Torrent) Length() int64 { return t.length }

// PieceLength returns the configured piece size.
func (t *Torrent) PieceLength() int64 { return t.pieceSize }

// Private reports whether the torrent is marked private.
func (t *Torrent) Private() bool { return t.private }

// Status returns the torrent's discovery status.
func (t *Torrent) Status() Status { return t.status }

// PieceCount returns ceil(Length/PieceLength).
func (t *Torrent) PieceCount() int64 {
	return (t.length + t.pieceSize - 1) / t.pieceSize
}

// Pieces returns the concatenation of per-piece SHA-1 digests, deriving and
// memoizing it on first call.
func (t *Torrent) Pieces() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.piecesLocked()
}

func (t *Torrent) piecesLocked() ([]byte, error) {
	if t.pieces == nil {
		pieces, err := t.slicer.HashPieces(t.pieceSize)
		if err != nil {
			return nil, err
		}
		t.pieces = pieces
	}
	return t.pieces, nil
}

// infoDict builds the exact {length, name, piece length, pieces} mapping
// whose bencoding is hashed to produce the info-hash, per the invariant
// that info_hash == SHA1(bencode(info_subdict)).
func infoDict(pieceLength, length int64, name string, pieces []byte) bencode.Dict {
	return bencode.Dict{
		"length":       length,
		"name":         name,
		"piece length": pieceLength,
		"pieces":       string(pieces),
	}
}

// InfoHash returns the torrent's 20-byte info-hash, deriving and memoizing
// it on first call. Two torrents built from the same file and piece size
// yield the same info-hash regardless of what else they were configured
// with, since only the piece length, pieces, name, and length feed the
// hash.
func (t *Torrent) InfoHash() ([20]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.infoHashSet {
		return t.infoHash, nil
	}

	pieces, err := t.piecesLocked()
	if err != nil {
		return [20]byte{}, err
	}

	encoded, err := bencode.Marshal(infoDict(t.pieceSize, t.length, t.name, pieces))
	if err != nil {
		return [20]byte{}, err
	}

	t.infoHash = sha1.Sum(encoded)
	t.infoHashSet = true
	return t.infoHash, nil
}

// ReadBlock reads length bytes of piece pieceIndex starting at blockBegin
// within that piece, translating the request into an absolute file offset.
// It fails with ErrBlockRead if pieceIndex or the block's bounds don't fit
// the torrent's geometry.
func (t *Torrent) ReadBlock(pieceIndex, blockBegin, length int64) ([]byte, error) {
	if pieceIndex < 0 || pieceIndex > t.PieceCount()-1 {
		return nil, ErrBlockRead
	}
	if blockBegin < 0 || blockBegin+length > t.pieceSize {
		return nil, ErrBlockRead
	}

	offset := pieceIndex*t.pieceSize + blockBegin
	return t.slicer.ReadBlock(offset, length)
}

// NormalizeAnnounceList wraps any bare-string tier in raw into a
// single-element tier, and passes list-of-string tiers through unchanged.
// It is the input normalization the builder applies to caller-supplied
// announce lists, which may arrive as loosely-typed data (e.g. decoded
// from YAML or an HTML form) where a single-tracker tier is just a string.
func NormalizeAnnounceList(raw []interface{}) [][]string {
	tiers := make([][]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			tiers = append(tiers, []string{v})
		case []string:
			tiers = append(tiers, v)
		case []interface{}:
			tier := make([]string, 0, len(v))
			for _, u := range v {
				if s, ok := u.(string); ok {
					tier = append(tier, s)
				}
			}
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

// MergeAnnounceLists combines two lists of tracker tiers, internal first,
// removing duplicate tiers while preserving order. Two tiers are
// considered duplicates if they contain the same URLs in the same order.
func MergeAnnounceLists(internal, caller [][]string) [][]string {
	seen := make(map[string]bool, len(internal)+len(caller))
	merged := make([][]string, 0, len(internal)+len(caller))

	tierKey := func(tier []string) string {
		key := ""
		for _, u := range tier {
			key += u + "\x00"
		}
		return key
	}

	for _, tiers := range [][][]string{internal, caller} {
		for _, tier := range tiers {
			if len(tier) == 0 {
				continue
			}
			key := tierKey(tier)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, tier)
		}
	}

	return merged
}

// Build assembles the client-facing .torrent dictionary. callerAnnounce is
// normalized and merged with the torrent's internal announce list
// (internal tiers first), and used to populate "announce" and
// "announce-list". The "info" key holds the same sub-dictionary used to
// derive the info-hash, augmented with "private" when the torrent is
// marked private.
func (t *Torrent) Build(callerAnnounce []interface{}) (bencode.Dict, error) {
	pieces, err := t.Pieces()
	if err != nil {
		return nil, err
	}

	info := infoDict(t.pieceSize, t.length, t.name, pieces)
	if t.private {
		info["private"] = 1
	}

	d := bencode.Dict{"info": info}

	tiers := MergeAnnounceLists(t.announceList, NormalizeAnnounceList(callerAnnounce))
	if len(tiers) > 0 {
		d["announce"] = tiers[0][0]

		tierList := make(bencode.List, len(tiers))
		for i, tier := range tiers {
			tierList[i] = tier
		}
		d["announce-list"] = tierList
	}

	if len(t.urlList) > 0 {
		d["url-list"] = t.urlList
	}

	if len(t.nodes) > 0 {
		nodeList := make(bencode.List, len(t.nodes))
		for i, n := range t.nodes {
			nodeList[i] = bencode.List{n.Host, n.Port}
		}
		d["nodes"] = nodeList
	}

	if t.createdBy != "" {
		d["created by"] = t.createdBy
	}

	return d, nil
}
