package region

import (
	"encoding/binary"

	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/internal/sector"
)

// Extent is a contiguous run of sectors holding one chunk record.
type Extent = sector.Extent

const (
	// SectorSize is the allocation unit of a region file.
	SectorSize = sector.Size

	// HeaderSize is the size of the offset and timestamp tables.
	HeaderSize = sector.HeaderSectors * SectorSize

	timestampBase = SectorSize
	entrySize     = 4
	lengthSize    = 4
)

type header struct {
	offsets    [coord.ChunksPerRegion]uint32
	timestamps [coord.ChunksPerRegion]int32
}

func packOffset(e Extent) uint32 { return e.Start<<8 | e.Count&0xff }

func unpackOffset(v uint32) Extent { return Extent{Start: v >> 8, Count: v & 0xff} }

func (h *header) extent(idx int) Extent { return unpackOffset(h.offsets[idx]) }

func (h *header) set(idx int, e Extent, ts int32) {
	h.offsets[idx] = packOffset(e)
	h.timestamps[idx] = ts
}

func (h *header) clear(idx int) { h.set(idx, Extent{}, 0) }

func (h *header) decode(b []byte) {
	for i := range coord.ChunksPerRegion {
		h.offsets[i] = binary.BigEndian.Uint32(b[i*entrySize:])
		h.timestamps[i] = int32(binary.BigEndian.Uint32(b[timestampBase+i*entrySize:]))
	}
}

func (h *header) encode() []byte {
	b := make([]byte, HeaderSize)
	for i := range coord.ChunksPerRegion {
		binary.BigEndian.PutUint32(b[i*entrySize:], h.offsets[i])
		binary.BigEndian.PutUint32(b[timestampBase+i*entrySize:], uint32(h.timestamps[i]))
	}
	return b
}

func offsetPos(idx int) int64    { return int64(idx * entrySize) }
func timestampPos(idx int) int64 { return int64(timestampBase + idx*entrySize) }

func entryBytes(v uint32) []byte {
	return binary.BigEndian.AppendUint32(make([]byte, 0, entrySize), v)
}
