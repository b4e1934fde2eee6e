package region

import (
	"errors"
	"fmt"

	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/internal/sector"
)

var (
	// ErrClosed is returned by operations on a closed file.
	ErrClosed = errors.New("region file closed")

	// ErrFormat marks files or records that do not follow the region format.
	ErrFormat = errors.New("invalid region format")

	// ErrCorruption marks records whose stored bytes cannot be trusted.
	ErrCorruption = errors.New("region data corrupted")

	// ErrChunkTooLarge is returned when a record would need more than 255 sectors.
	ErrChunkTooLarge = sector.ErrTooLarge

	// ErrRegionFull is returned when the file cannot grow any further.
	ErrRegionFull = sector.ErrFull

	// ErrOutOfRegion is returned for a chunk coordinate that belongs to another region.
	ErrOutOfRegion = errors.New("chunk does not belong to region")
)

// FormatError reports a structural problem with a region file or record.
// It matches ErrFormat with errors.Is.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("region %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() []error { return unwrapWith(ErrFormat, e.Err) }

// CorruptionError reports a chunk record whose length or contents are invalid.
// It matches ErrCorruption with errors.Is.
type CorruptionError struct {
	Path   string
	Chunk  coord.ChunkCoord
	Extent Extent
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("region %s: %v at sectors %v: %s", e.Path, e.Chunk, e.Extent, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptionError) Unwrap() []error { return unwrapWith(ErrCorruption, e.Err) }

func unwrapWith(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
