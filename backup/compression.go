package backup

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the algorithm region snapshots are compressed with.
type Compression string

const (
	// LZ4 is fast and the default.
	LZ4 Compression = "lz4"
	// Zstd compresses better at a higher CPU cost, for cold storage.
	Zstd Compression = "zstd"
	// None stores raw region files.
	None Compression = "none"
)

// ErrInvalidCompression is returned for an unknown snapshot compression.
var ErrInvalidCompression = errors.New("invalid backup compression")

func (c Compression) valid() bool {
	switch c {
	case LZ4, Zstd, None:
		return true
	}
	return false
}

func (c Compression) ext() string {
	switch c {
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

// newWriter wraps w with the compressor. Closing the returned writer flushes
// the compressed stream but does not close w.
func (c Compression) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case None:
		return nopWriteCloser{w}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCompression, c)
}

// newReader wraps r with the decompressor.
func (c Compression) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	case None:
		return io.NopCloser(r), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCompression, c)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
