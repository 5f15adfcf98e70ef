package torrent

import "errors"

// ErrInvalidPieceSize is returned by New and Slicer.HashPieces when given a
// piece size that is zero or negative.
var ErrInvalidPieceSize = errors.New("torrent: piece size must be positive")

// ErrBlockRead is returned when a read crosses a file or piece boundary:
// offset+length exceeds the file size, a piece index is out of range, or a
// block does not fit within its piece.
var ErrBlockRead = errors.New("torrent: block read out of bounds")
