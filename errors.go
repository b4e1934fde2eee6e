package regionstore

import (
	"github.com/hupe1980/regionstore/codec"
	"github.com/hupe1980/regionstore/region"
)

var (
	// ErrClosed is returned by operations on a closed store or region file.
	ErrClosed = region.ErrClosed

	// ErrFormat marks files or records that do not follow the region format.
	ErrFormat = region.ErrFormat

	// ErrCorruption marks records whose stored bytes cannot be trusted.
	ErrCorruption = region.ErrCorruption

	// ErrChunkTooLarge is returned when a compressed chunk exceeds 255 sectors.
	ErrChunkTooLarge = region.ErrChunkTooLarge

	// ErrRegionFull is returned when a region file cannot grow any further.
	ErrRegionFull = region.ErrRegionFull

	// ErrInvalidCompression is returned for an unknown compression algorithm.
	ErrInvalidCompression = codec.ErrInvalidCompression
)

type (
	// FormatError reports a structural problem with a region file or record.
	FormatError = region.FormatError

	// CorruptionError reports a chunk record whose stored bytes are invalid.
	CorruptionError = region.CorruptionError
)
