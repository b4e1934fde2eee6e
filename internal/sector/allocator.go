// Package sector manages the 4096-byte sectors of a region file.
//
// The allocator tracks which sectors are occupied by chunk extents and which
// runs are free. Occupancy is kept in a roaring bitmap; free space is an
// ordered, coalesced slice of runs. Neither is persisted: both are rebuilt
// from the region header every time a file is opened.
package sector

import (
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	// Size is the allocation unit in bytes.
	Size = 4096

	// HeaderSectors is the number of sectors reserved for the offset and
	// timestamp tables at the start of every file.
	HeaderSectors = 2

	// MaxExtentSectors is the largest extent an offset entry can describe.
	MaxExtentSectors = 255

	// MaxSectors bounds the file length; sector indexes are 24 bits wide.
	MaxSectors = 1 << 24

	// recordPrefix is the length word in front of every chunk record.
	recordPrefix = 4
)

var (
	// ErrTooLarge is returned when a record needs more than MaxExtentSectors.
	ErrTooLarge = errors.New("chunk record exceeds maximum extent size")

	// ErrFull is returned when growing the file would overflow 24-bit sector indexes.
	ErrFull = errors.New("region file has no addressable sectors left")

	// ErrOverlap is returned by Reserve for an extent that collides with an
	// occupied sector or lies outside the file.
	ErrOverlap = errors.New("extent overlaps occupied or out-of-range sectors")
)

// Extent is a contiguous run of sectors [Start, Start+Count).
type Extent struct {
	Start uint32
	Count uint32
}

// End returns the first sector after e.
func (e Extent) End() uint32 { return e.Start + e.Count }

// IsZero reports whether e is the absent extent.
func (e Extent) IsZero() bool { return e.Start == 0 && e.Count == 0 }

// Offset returns the byte offset of the first sector.
func (e Extent) Offset() int64 { return int64(e.Start) * Size }

// Bytes returns the extent length in bytes.
func (e Extent) Bytes() int { return int(e.Count) * Size }

func (e Extent) String() string {
	return fmt.Sprintf("[%d+%d)", e.Start, e.Count)
}

// SectorsFor returns the number of sectors a record of n bytes (tag plus
// compressed payload) occupies once its length prefix is added.
func SectorsFor(n int) uint32 {
	return uint32((recordPrefix + n + Size - 1) / Size)
}

// Allocator assigns extents inside one region file. It is not safe for
// concurrent use; the owning region file serializes access.
type Allocator struct {
	used  *roaring.Bitmap
	free  []Extent // sorted by Start, never adjacent
	total uint32
}

// New returns an allocator for a file of total sectors where every sector
// past the header is free. total is raised to HeaderSectors if smaller.
func New(total uint32) *Allocator {
	if total < HeaderSectors {
		total = HeaderSectors
	}
	a := &Allocator{
		used:  roaring.New(),
		total: total,
	}
	a.used.AddRange(0, HeaderSectors)
	if total > HeaderSectors {
		a.free = append(a.free, Extent{Start: HeaderSectors, Count: total - HeaderSectors})
	}
	return a
}

// Total returns the file length in sectors.
func (a *Allocator) Total() uint32 { return a.total }

// UsedSectors returns the number of occupied sectors, header included.
func (a *Allocator) UsedSectors() uint32 { return uint32(a.used.GetCardinality()) }

// FreeSectors returns the number of free sectors inside the file.
func (a *Allocator) FreeSectors() uint32 { return a.total - a.UsedSectors() }

// FreeExtents returns a copy of the free runs ordered by start sector.
func (a *Allocator) FreeExtents() []Extent { return slices.Clone(a.free) }

// FreeRuns returns the number of free runs.
func (a *Allocator) FreeRuns() int { return len(a.free) }

// IsUsed reports whether sector s is occupied.
func (a *Allocator) IsUsed(s uint32) bool { return a.used.Contains(s) }

// Reserve marks e as occupied. It is used while rebuilding state from a
// header and fails with ErrOverlap if any sector of e is already occupied
// or lies past the end of the file.
func (a *Allocator) Reserve(e Extent) error {
	if e.Count == 0 || e.Start < HeaderSectors || e.End() > a.total {
		return fmt.Errorf("%w: %v", ErrOverlap, e)
	}

	i, ok := a.runContaining(e.Start)
	if !ok || a.free[i].End() < e.End() {
		return fmt.Errorf("%w: %v", ErrOverlap, e)
	}

	a.take(i, e)
	return nil
}

// Place decides where a record of needed sectors goes, given the extent the
// chunk currently occupies (zero if absent).
//
// If old is large enough it is returned with inPlace set and nothing changes.
// Otherwise a new extent is allocated by best fit, or by growing the file.
// The old extent stays occupied so the new one never overlaps it; the caller
// frees it once the header points at the new extent.
func (a *Allocator) Place(old Extent, needed uint32) (ext Extent, inPlace bool, err error) {
	if needed == 0 {
		needed = 1
	}
	if needed > MaxExtentSectors {
		return Extent{}, false, fmt.Errorf("%w: %d sectors", ErrTooLarge, needed)
	}
	if !old.IsZero() && old.Count >= needed {
		return old, true, nil
	}

	ext, err = a.Allocate(needed)
	return ext, false, err
}

// Allocate returns a newly occupied extent of exactly needed sectors, carved
// from the smallest free run that fits or appended at the end of the file.
func (a *Allocator) Allocate(needed uint32) (Extent, error) {
	if needed == 0 || needed > MaxExtentSectors {
		return Extent{}, fmt.Errorf("%w: %d sectors", ErrTooLarge, needed)
	}

	best := -1
	for i, run := range a.free {
		if run.Count < needed {
			continue
		}
		if best < 0 || run.Count < a.free[best].Count {
			best = i
			if run.Count == needed {
				break
			}
		}
	}

	if best >= 0 {
		e := Extent{Start: a.free[best].Start, Count: needed}
		a.take(best, e)
		return e, nil
	}

	if uint64(a.total)+uint64(needed) > MaxSectors {
		return Extent{}, ErrFull
	}
	e := Extent{Start: a.total, Count: needed}
	a.total += needed
	a.used.AddRange(uint64(e.Start), uint64(e.End()))
	return e, nil
}

// Free returns e to the free set. The file length never shrinks.
func (a *Allocator) Free(e Extent) {
	if e.Count == 0 {
		return
	}
	a.used.RemoveRange(uint64(e.Start), uint64(e.End()))
	a.insertFree(e)
}

// Release undoes an Allocate whose data never reached the disk. If e is the
// tail of the file the file length is rolled back as well; it returns the
// resulting total.
func (a *Allocator) Release(e Extent) uint32 {
	if e.Count == 0 {
		return a.total
	}
	if e.End() == a.total {
		a.used.RemoveRange(uint64(e.Start), uint64(e.End()))
		a.total = e.Start
		return a.total
	}
	a.Free(e)
	return a.total
}

// Check verifies that occupied and free sectors partition the file exactly.
func (a *Allocator) Check() error {
	free := roaring.New()
	var prevEnd uint32
	for i, run := range a.free {
		if run.Count == 0 {
			return fmt.Errorf("empty free run at %d", i)
		}
		if i > 0 && run.Start <= prevEnd {
			return fmt.Errorf("free runs %v and %v are unordered or adjacent", a.free[i-1], run)
		}
		prevEnd = run.End()
		free.AddRange(uint64(run.Start), uint64(run.End()))
	}

	if a.used.Intersects(free) {
		return errors.New("free run overlaps occupied sectors")
	}
	union := roaring.Or(a.used, free)
	if union.GetCardinality() != uint64(a.total) {
		return fmt.Errorf("used+free covers %d sectors, file has %d", union.GetCardinality(), a.total)
	}
	if a.total > 0 && union.Maximum() != a.total-1 {
		return fmt.Errorf("sector %d lies past end of file", union.Maximum())
	}
	return nil
}

// runContaining returns the index of the free run holding sector s.
func (a *Allocator) runContaining(s uint32) (int, bool) {
	i, found := slices.BinarySearchFunc(a.free, s, func(run Extent, s uint32) int {
		switch {
		case run.End() <= s:
			return -1
		case run.Start > s:
			return 1
		default:
			return 0
		}
	})
	return i, found
}

// take removes e from free run i, which must contain it.
func (a *Allocator) take(i int, e Extent) {
	run := a.free[i]
	before := Extent{Start: run.Start, Count: e.Start - run.Start}
	after := Extent{Start: e.End(), Count: run.End() - e.End()}

	switch {
	case before.Count == 0 && after.Count == 0:
		a.free = slices.Delete(a.free, i, i+1)
	case before.Count == 0:
		a.free[i] = after
	case after.Count == 0:
		a.free[i] = before
	default:
		a.free[i] = before
		a.free = slices.Insert(a.free, i+1, after)
	}

	a.used.AddRange(uint64(e.Start), uint64(e.End()))
}

func (a *Allocator) insertFree(e Extent) {
	i, _ := slices.BinarySearchFunc(a.free, e.Start, func(run Extent, s uint32) int {
		switch {
		case run.Start < s:
			return -1
		case run.Start > s:
			return 1
		default:
			return 0
		}
	})

	if i > 0 && a.free[i-1].End() == e.Start {
		i--
		a.free[i].Count += e.Count
	} else {
		a.free = slices.Insert(a.free, i, e)
	}

	if i+1 < len(a.free) && a.free[i].End() == a.free[i+1].Start {
		a.free[i].Count += a.free[i+1].Count
		a.free = slices.Delete(a.free, i+1, i+2)
	}
}
