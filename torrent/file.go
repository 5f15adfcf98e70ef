package torrent

import (
	"crypto/sha1"
	"os"
	"path/filepath"
)

// File is an immutable descriptor for a single shareable file: its
// absolute path, byte length, and base name.
type File struct {
	path string
	size int64
	name string
}

// Stat resolves path to an absolute path, records the file's size from
// os.Stat, and returns the resulting File descriptor.
func Stat(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	return &File{
		path: abs,
		size: info.Size(),
		name: filepath.Base(abs),
	}, nil
}

// Path returns the file's absolute path.
func (f *File) Path() string { return f.path }

// Size returns the file's byte length.
func (f *File) Size() int64 { return f.size }

// Name returns the file's base name.
func (f *File) Name() string { return f.name }

// Slicer exposes a File as a sequence of indexed fixed-size pieces and
// allows reading arbitrary sub-blocks of the underlying file.
type Slicer struct {
	file *File
}

// NewSlicer wraps f for piece-oriented reads.
func NewSlicer(f *File) *Slicer {
	return &Slicer{file: f}
}

// Size returns the size of the underlying file in bytes.
func (s *Slicer) Size() int64 { return s.file.Size() }

// Basename returns the base name of the underlying file.
func (s *Slicer) Basename() string { return s.file.Name() }

// ReadBlock returns exactly length bytes of the underlying file starting at
// offset. It fails with ErrBlockRead if offset+length exceeds the file's
// size.
func (s *Slicer) ReadBlock(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > s.file.Size() {
		return nil, ErrBlockRead
	}

	f, err := os.Open(s.file.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, err
	}

	return buf, nil
}

// HashPieces returns the concatenation of SHA-1 digests, one per piece,
// where piece k covers the byte range [k*pieceSize, min((k+1)*pieceSize,
// size)). The final piece may be shorter than pieceSize. The result is
// exactly 20*ceil(size/pieceSize) bytes long.
func (s *Slicer) HashPieces(pieceSize int64) ([]byte, error) {
	if pieceSize <= 0 {
		return nil, ErrInvalidPieceSize
	}

	f, err := os.Open(s.file.Path())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := s.file.Size()
	pieceCount := (size + pieceSize - 1) / pieceSize
	pieces := make([]byte, 0, pieceCount*sha1.Size)

	buf := make([]byte, pieceSize)
	for i := int64(0); i < pieceCount; i++ {
		remaining := size - i*pieceSize
		n := pieceSize
		if remaining < n {
			n = remaining
		}

		if _, err := f.ReadAt(buf[:n], i*pieceSize); err != nil {
			return nil, err
		}

		digest := sha1.Sum(buf[:n])
		pieces = append(pieces, digest[:]...)
	}

	return pieces, nil
}
