package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionOf(t *testing.T) {
	tests := []struct {
		chunk ChunkCoord
		want  RegionCoord
	}{
		{Chunk(0, 0), Region(0, 0)},
		{Chunk(31, 31), Region(0, 0)},
		{Chunk(32, 0), Region(1, 0)},
		{Chunk(-1, 0), Region(-1, 0)},
		{Chunk(-32, -33), Region(-1, -2)},
		{Chunk(-33, 64), Region(-2, 2)},
		{Chunk(math.MinInt32, math.MaxInt32), Region(math.MinInt32>>5, math.MaxInt32>>5)},
	}

	for _, tt := range tests {
		t.Run(tt.chunk.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, RegionOf(tt.chunk))
		})
	}
}

func TestLocalIndexOf(t *testing.T) {
	assert.Equal(t, 0, LocalIndexOf(Chunk(0, 0)))
	assert.Equal(t, 1023, LocalIndexOf(Chunk(31, 31)))
	assert.Equal(t, 31, LocalIndexOf(Chunk(-1, 0)))
	assert.Equal(t, 32*31, LocalIndexOf(Chunk(0, -1)))
	assert.Equal(t, 5+5*32, LocalIndexOf(Chunk(5, 5)))
	assert.Equal(t, 2+3*32, LocalIndexOf(Chunk(34, 35)))
}

func TestLocalIndexBijection(t *testing.T) {
	for _, r := range []RegionCoord{Region(0, 0), Region(-1, -1), Region(3, -7), Region(-100, 42)} {
		seen := make(map[int]bool, ChunksPerRegion)
		for dx := int32(0); dx < ChunksPerAxis; dx++ {
			for dz := int32(0); dz < ChunksPerAxis; dz++ {
				c := Chunk(r.X*ChunksPerAxis+dx, r.Z*ChunksPerAxis+dz)
				require.Equal(t, r, RegionOf(c))

				idx := LocalIndexOf(c)
				require.GreaterOrEqual(t, idx, 0)
				require.Less(t, idx, ChunksPerRegion)
				require.False(t, seen[idx], "index %d produced twice in %v", idx, r)
				seen[idx] = true

				assert.Equal(t, c, ChunkAt(r, idx))
			}
		}
		assert.Len(t, seen, ChunksPerRegion)
	}
}

func TestChunkAtPanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { ChunkAt(Region(0, 0), ChunksPerRegion) })
	assert.Panics(t, func() { ChunkAt(Region(0, 0), -1) })
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "r.0.0.mca", Region(0, 0).FileName())
	assert.Equal(t, "r.-1.12.mca", Region(-1, 12).FileName())

	for _, r := range []RegionCoord{Region(0, 0), Region(-1, 12), Region(math.MinInt32, math.MaxInt32)} {
		got, ok := ParseFileName(r.FileName())
		require.True(t, ok)
		assert.Equal(t, r, got)
	}
}

func TestParseFileNameRejects(t *testing.T) {
	for _, name := range []string{
		"", "r.0.mca", "r.0.0.mcr", "x.0.0.mca", "r.a.0.mca", "r.0.0.0.mca", "r.99999999999.0.mca",
	} {
		_, ok := ParseFileName(name)
		assert.False(t, ok, name)
	}
}
