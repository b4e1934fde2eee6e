// Package codec compresses chunk payloads and tags them with the algorithm used.
//
// The tag byte is part of the persisted region format: changing a tag value
// makes every previously written chunk unreadable.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compression identifies the algorithm applied to a stored chunk payload.
type Compression uint8

const (
	// GZip is RFC 1952 gzip.
	GZip Compression = 1
	// Zlib is RFC 1950 zlib. It is the default for new chunks.
	Zlib Compression = 2
	// None stores the payload as is.
	None Compression = 3
)

// Default is the compression used when the caller does not pick one.
const Default = Zlib

var (
	// ErrInvalidCompression is returned for a tag byte outside {1,2,3}.
	ErrInvalidCompression = errors.New("invalid compression type")

	// ErrCorruptPayload is returned when the compressed stream cannot be decoded.
	ErrCorruptPayload = errors.New("corrupt compressed payload")

	// ErrEmpty is returned when decoding an empty record.
	ErrEmpty = errors.New("empty record")
)

// Valid reports whether c is a known compression tag.
func (c Compression) Valid() bool {
	return c == GZip || c == Zlib || c == None
}

func (c Compression) String() string {
	switch c {
	case GZip:
		return "gzip"
	case Zlib:
		return "zlib"
	case None:
		return "none"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ByName returns a compression by its stable name.
func ByName(name string) (Compression, bool) {
	switch name {
	case "gzip":
		return GZip, true
	case "zlib":
		return Zlib, true
	case "none", "uncompressed":
		return None, true
	default:
		return 0, false
	}
}

var (
	gzipWriterPool = sync.Pool{New: func() any { return gzip.NewWriter(nil) }}
	zlibWriterPool = sync.Pool{New: func() any { return zlib.NewWriter(nil) }}
)

// Encode compresses payload with c and returns tag||compressed.
func Encode(payload []byte, c Compression) ([]byte, error) {
	return AppendEncode(nil, payload, c)
}

// AppendEncode appends tag||compressed to dst and returns the extended slice.
func AppendEncode(dst, payload []byte, c Compression) ([]byte, error) {
	if !c.Valid() {
		return dst, fmt.Errorf("%w: %d", ErrInvalidCompression, uint8(c))
	}

	buf := bytes.NewBuffer(dst)
	buf.WriteByte(byte(c))

	switch c {
	case None:
		buf.Write(payload)
	case GZip:
		w := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(w)
		w.Reset(buf)
		if err := writeAndClose(w, payload); err != nil {
			return dst, fmt.Errorf("gzip encode: %w", err)
		}
	case Zlib:
		w := zlibWriterPool.Get().(*zlib.Writer)
		defer zlibWriterPool.Put(w)
		w.Reset(buf)
		if err := writeAndClose(w, payload); err != nil {
			return dst, fmt.Errorf("zlib encode: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func writeAndClose(w io.WriteCloser, p []byte) error {
	if _, err := w.Write(p); err != nil {
		return err
	}
	return w.Close()
}

// Decode reads the tag byte of data and returns the decompressed payload.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	c := Compression(data[0])
	body := data[1:]

	switch c {
	case None:
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	case GZip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrCorruptPayload, err)
		}
		return readAllAndClose(r, "gzip")
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib: %w", ErrCorruptPayload, err)
		}
		return readAllAndClose(r, "zlib")
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, uint8(c))
	}
}

func readAllAndClose(r io.ReadCloser, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptPayload, name, err)
	}
	return out, nil
}
