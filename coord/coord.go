// Package coord maps chunk coordinates onto region files and header slots.
//
// A region covers a 32x32 grid of chunks. Every chunk inside a region owns
// exactly one of the 1024 header slots of that region's file. All functions
// here are pure and never fail.
package coord

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ChunksPerAxis is the number of chunks along one side of a region.
	ChunksPerAxis = 32

	// ChunksPerRegion is the number of header slots in a region file.
	ChunksPerRegion = ChunksPerAxis * ChunksPerAxis

	regionShift = 5
	axisMask    = ChunksPerAxis - 1
)

// ChunkCoord identifies a single chunk column in the world.
type ChunkCoord struct {
	X, Z int32
}

// RegionCoord identifies one region file.
type RegionCoord struct {
	X, Z int32
}

// Chunk returns the chunk coordinate (x, z).
func Chunk(x, z int32) ChunkCoord { return ChunkCoord{X: x, Z: z} }

// Region returns the region coordinate (x, z).
func Region(x, z int32) RegionCoord { return RegionCoord{X: x, Z: z} }

func (c ChunkCoord) String() string {
	return fmt.Sprintf("chunk(%d,%d)", c.X, c.Z)
}

func (r RegionCoord) String() string {
	return fmt.Sprintf("region(%d,%d)", r.X, r.Z)
}

// RegionOf returns the region containing c.
//
// The arithmetic shift floors toward negative infinity, so chunk -1 belongs to
// region -1 and chunk -32 is the first chunk of region -1.
func RegionOf(c ChunkCoord) RegionCoord {
	return RegionCoord{X: c.X >> regionShift, Z: c.Z >> regionShift}
}

// LocalIndexOf returns the header slot of c inside its region, in [0, 1024).
func LocalIndexOf(c ChunkCoord) int {
	return int(c.X&axisMask) + int(c.Z&axisMask)*ChunksPerAxis
}

// ChunkAt is the inverse of LocalIndexOf for chunks inside r.
// It panics if idx is out of range.
func ChunkAt(r RegionCoord, idx int) ChunkCoord {
	if idx < 0 || idx >= ChunksPerRegion {
		panic(fmt.Sprintf("coord: local index %d out of range", idx))
	}
	return ChunkCoord{
		X: r.X<<regionShift + int32(idx%ChunksPerAxis),
		Z: r.Z<<regionShift + int32(idx/ChunksPerAxis),
	}
}

// Contains reports whether c lies inside r.
func (r RegionCoord) Contains(c ChunkCoord) bool {
	return RegionOf(c) == r
}

// FileName returns the conventional file name of the region, "r.<x>.<z>.mca".
func (r RegionCoord) FileName() string {
	return "r." + strconv.FormatInt(int64(r.X), 10) + "." + strconv.FormatInt(int64(r.Z), 10) + ".mca"
}

// ParseFileName parses a name produced by FileName.
func ParseFileName(name string) (RegionCoord, bool) {
	rest, ok := strings.CutPrefix(name, "r.")
	if !ok {
		return RegionCoord{}, false
	}
	rest, ok = strings.CutSuffix(rest, ".mca")
	if !ok {
		return RegionCoord{}, false
	}
	xs, zs, ok := strings.Cut(rest, ".")
	if !ok {
		return RegionCoord{}, false
	}
	x, err := strconv.ParseInt(xs, 10, 32)
	if err != nil {
		return RegionCoord{}, false
	}
	z, err := strconv.ParseInt(zs, 10, 32)
	if err != nil {
		return RegionCoord{}, false
	}
	return RegionCoord{X: int32(x), Z: int32(z)}, true
}
