package torrent

import (
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coelacanth/tracker/bencode"
)

func writeTempFile(t *testing.T, size int) *File {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "content.bin")

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := Stat(path)
	require.NoError(t, err)
	return f
}

func TestHashPiecesLength(t *testing.T) {
	// 1 MiB + 1 byte, piece size 512 KiB: 3 pieces, 60 bytes of hashes.
	const pieceSize = 512 * 1024
	f := writeTempFile(t, 1024*1024+1)

	s := NewSlicer(f)
	pieces, err := s.HashPieces(pieceSize)
	require.NoError(t, err)
	assert.Len(t, pieces, 60)

	tr, err := New(f, pieceSize)
	require.NoError(t, err)
	assert.EqualValues(t, 3, tr.PieceCount())
}

func TestLastPieceIsShort(t *testing.T) {
	const pieceSize = 10
	f := writeTempFile(t, 25)

	s := NewSlicer(f)
	pieces, err := s.HashPieces(pieceSize)
	require.NoError(t, err)
	require.Len(t, pieces, 60) // ceil(25/10)=3 pieces * 20 bytes

	last, err := s.ReadBlock(20, 5)
	require.NoError(t, err)
	want := sha1.Sum(last)
	assert.Equal(t, want[:], pieces[40:60])
}

func TestInfoHashStableRegardlessOfAnnounceList(t *testing.T) {
	f := writeTempFile(t, 5000)

	withoutTrackers, err := New(f, 1024)
	require.NoError(t, err)

	withTrackers, err := New(f, 1024, WithAnnounceList([][]string{{"http://tracker.example/announce"}}))
	require.NoError(t, err)

	h1, err := withoutTrackers.InfoHash()
	require.NoError(t, err)
	h2, err := withTrackers.InfoHash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestInfoHashMatchesManualDerivation(t *testing.T) {
	f := writeTempFile(t, 3000)
	tr, err := New(f, 1024)
	require.NoError(t, err)

	pieces, err := tr.Pieces()
	require.NoError(t, err)

	encoded, err := bencode.Marshal(bencode.Dict{
		"length":       tr.Length(),
		"name":         tr.Name(),
		"piece length": tr.PieceLength(),
		"pieces":       string(pieces),
	})
	require.NoError(t, err)
	want := sha1.Sum(encoded)

	got, err := tr.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewRejectsNonPositivePieceSize(t *testing.T) {
	f := writeTempFile(t, 100)

	_, err := New(f, 0)
	assert.ErrorIs(t, err, ErrInvalidPieceSize)

	_, err = New(f, -1)
	assert.ErrorIs(t, err, ErrInvalidPieceSize)
}

func TestReadBlockRejectsOutOfBoundsGeometry(t *testing.T) {
	f := writeTempFile(t, 100)
	tr, err := New(f, 32)
	require.NoError(t, err)

	_, err = tr.ReadBlock(tr.PieceCount(), 0, 1)
	assert.ErrorIs(t, err, ErrBlockRead)

	_, err = tr.ReadBlock(0, 30, 10)
	assert.ErrorIs(t, err, ErrBlockRead)
}

func TestBuildMergesAnnounceListsAndWrapsBareStrings(t *testing.T) {
	f := writeTempFile(t, 100)
	tr, err := New(f, 32, WithAnnounceList([][]string{{"http://a/announce"}}))
	require.NoError(t, err)

	d, err := tr.Build([]interface{}{"http://a/announce", []interface{}{"http://b/announce"}})
	require.NoError(t, err)

	assert.Equal(t, "http://a/announce", d["announce"])

	tiers, ok := d["announce-list"].(bencode.List)
	require.True(t, ok)
	require.Len(t, tiers, 2)
	assert.Equal(t, []string{"http://a/announce"}, tiers[0])
	assert.Equal(t, []string{"http://b/announce"}, tiers[1])

	info, ok := d["info"].(bencode.Dict)
	require.True(t, ok)
	assert.Equal(t, tr.Name(), info["name"])
}

func TestBuildIncludesPrivateFlag(t *testing.T) {
	f := writeTempFile(t, 100)
	tr, err := New(f, 32, WithPrivate(true))
	require.NoError(t, err)

	d, err := tr.Build(nil)
	require.NoError(t, err)

	info := d["info"].(bencode.Dict)
	assert.Equal(t, 1, info["private"])
}
