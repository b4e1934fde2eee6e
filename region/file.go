package region

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/regionstore/codec"
	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/internal/fs"
	"github.com/hupe1980/regionstore/internal/sector"
)

// File is an open region file.
type File struct {
	mu     sync.RWMutex
	path   string
	coord  coord.RegionCoord
	f      fs.File
	hdr    header
	alloc  *sector.Allocator
	opts   options
	log    *slog.Logger
	closed bool

	dropped int
}

// Stats describes space usage of a region file.
type Stats struct {
	Chunks         int
	TotalSectors   uint32
	UsedSectors    uint32
	FreeSectors    uint32
	FreeExtents    int
	DroppedEntries int
}

// Open opens the region file at path, creating it with an empty header if it
// does not exist. rc is the region the file holds; it maps header slots back
// to chunk coordinates.
//
// Header entries that point into the header, past the end of the file or at
// sectors already claimed by an earlier entry are logged and treated as absent.
func Open(path string, rc coord.RegionCoord, optFns ...Option) (*File, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	f, err := o.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open region %s: %w", path, err)
	}
	if o.lock {
		if err := fs.Lock(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("lock region %s: %w", path, err)
		}
	}

	rf := &File{
		path:  path,
		coord: rc,
		f:     f,
		opts:  o,
		log:   o.logger.With("region", rc.FileName()),
	}
	if err := rf.load(); err != nil {
		rf.release()
		return nil, err
	}
	return rf, nil
}

func (r *File) load() error {
	size, err := fs.Size(r.f)
	if err != nil {
		return fmt.Errorf("stat region %s: %w", r.path, err)
	}

	if size == 0 {
		if _, err := r.f.WriteAt(make([]byte, HeaderSize), 0); err != nil {
			return fmt.Errorf("write empty header %s: %w", r.path, err)
		}
		if err := r.sync(); err != nil {
			return err
		}
		r.alloc = sector.New(sector.HeaderSectors)
		return nil
	}

	switch {
	case size < HeaderSize:
		return &FormatError{Path: r.path, Reason: fmt.Sprintf("file length %d is shorter than the header", size)}
	case size%SectorSize != 0:
		return &FormatError{Path: r.path, Reason: fmt.Sprintf("file length %d is not a multiple of %d", size, SectorSize)}
	case size/SectorSize > sector.MaxSectors:
		return &FormatError{Path: r.path, Reason: fmt.Sprintf("file length %d exceeds addressable sectors", size)}
	}

	buf := make([]byte, HeaderSize)
	if _, err := r.f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read header %s: %w", r.path, err)
	}
	r.hdr.decode(buf)
	r.alloc = sector.New(uint32(size / SectorSize))

	var dropped []int
	for idx := range coord.ChunksPerRegion {
		e := r.hdr.extent(idx)
		if e.IsZero() {
			continue
		}
		if err := r.alloc.Reserve(e); err != nil {
			r.log.Warn("dropping invalid header entry",
				"chunk", coord.ChunkAt(r.coord, idx),
				"extent", e.String(),
				"file_sectors", r.alloc.Total(),
				"error", err,
			)
			r.hdr.clear(idx)
			dropped = append(dropped, idx)
		}
	}
	r.dropped = len(dropped)
	return r.clearEntries(dropped)
}

// clearEntries zeroes the on-disk offset and timestamp words of slots dropped
// at open. Their sectors are free and may be handed to other chunks.
func (r *File) clearEntries(slots []int) error {
	if len(slots) == 0 {
		return nil
	}
	zero := entryBytes(0)
	for _, idx := range slots {
		if _, err := r.f.WriteAt(zero, offsetPos(idx)); err != nil {
			return fmt.Errorf("clear header entry %d in %s: %w", idx, r.path, err)
		}
		if _, err := r.f.WriteAt(zero, timestampPos(idx)); err != nil {
			return fmt.Errorf("clear header entry %d in %s: %w", idx, r.path, err)
		}
	}
	return r.sync()
}

// Path returns the file path.
func (r *File) Path() string { return r.path }

// Coord returns the region the file holds.
func (r *File) Coord() coord.RegionCoord { return r.coord }

func (r *File) index(c coord.ChunkCoord) (int, error) {
	if !r.coord.Contains(c) {
		return 0, fmt.Errorf("%w: %v not in %v", ErrOutOfRegion, c, r.coord)
	}
	return coord.LocalIndexOf(c), nil
}

// Load returns the payload stored for c. A chunk that was never saved (or was
// deleted) yields found == false and a nil error.
func (r *File) Load(c coord.ChunkCoord) (payload []byte, found bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, false, ErrClosed
	}
	idx, err := r.index(c)
	if err != nil {
		return nil, false, err
	}

	e := r.hdr.extent(idx)
	if e.IsZero() {
		return nil, false, nil
	}

	payload, err = r.readRecord(c, e)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (r *File) readRecord(c coord.ChunkCoord, e Extent) ([]byte, error) {
	buf := make([]byte, e.Bytes())
	n, err := r.f.ReadAt(buf, e.Offset())
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %v from %s: %w", c, r.path, err)
	}
	buf = buf[:n]

	corrupt := func(reason string, cause error) error {
		return &CorruptionError{Path: r.path, Chunk: c, Extent: e, Reason: reason, Err: cause}
	}

	if n < lengthSize+1 {
		return nil, corrupt("record header lies past end of file", nil)
	}
	length := int64(binary.BigEndian.Uint32(buf))
	switch {
	case length == 0:
		return nil, corrupt("record has zero length", nil)
	case lengthSize+length > int64(e.Bytes()):
		return nil, corrupt(fmt.Sprintf("record length %d overruns extent", length), nil)
	case lengthSize+length > int64(n):
		return nil, corrupt(fmt.Sprintf("record length %d runs past end of file", length), nil)
	}

	payload, err := codec.Decode(buf[lengthSize : lengthSize+length])
	switch {
	case errors.Is(err, codec.ErrInvalidCompression):
		return nil, &FormatError{Path: r.path, Reason: fmt.Sprintf("%v at sectors %v", c, e), Err: err}
	case err != nil:
		return nil, corrupt("payload does not decode", err)
	}
	return payload, nil
}

// Save stores payload for c compressed with comp.
func (r *File) Save(c coord.ChunkCoord, payload []byte, comp codec.Compression) error {
	record, err := encodeRecord(payload, comp)
	if err != nil {
		return err
	}
	needed := sector.SectorsFor(len(record) - lengthSize)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	idx, err := r.index(c)
	if err != nil {
		return err
	}

	old := r.hdr.extent(idx)
	e, inPlace, err := r.alloc.Place(old, needed)
	if err != nil {
		return fmt.Errorf("place %v in %s: %w", c, r.path, err)
	}

	if err := r.writeRecord(e, record); err != nil {
		if !inPlace {
			r.rollback(e)
		}
		return fmt.Errorf("write %v to %s: %w", c, r.path, err)
	}

	committed, err := r.writeEntry(idx, e, int32(r.opts.now().Unix()))
	if !committed {
		if !inPlace {
			r.rollback(e)
		}
		return fmt.Errorf("update header for %v in %s: %w", c, r.path, err)
	}
	if err != nil {
		// The on-disk header may still name the old extent; it stays
		// reserved until the file is reopened.
		return fmt.Errorf("sync header for %v in %s: %w", c, r.path, err)
	}

	if !inPlace && !old.IsZero() {
		r.alloc.Free(old)
		r.log.Debug("chunk relocated", "chunk", c, "from", old.String(), "to", e.String())
	}
	return nil
}

func encodeRecord(payload []byte, comp codec.Compression) ([]byte, error) {
	record, err := codec.AppendEncode(make([]byte, lengthSize, lengthSize+1+len(payload)), payload, comp)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(record, uint32(len(record)-lengthSize))
	return record, nil
}

// writeRecord writes record at the start of e and zero-fills the rest of the
// extent.
func (r *File) writeRecord(e Extent, record []byte) error {
	buf := make([]byte, e.Bytes())
	copy(buf, record)

	n, err := r.f.WriteAt(buf, e.Offset())
	if err == nil && n < len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return err
	}
	return r.sync()
}

// writeEntry points slot idx at e on disk and in memory. committed reports
// whether the offset entry reached the file; when it did, the in-memory
// header follows it even if the timestamp write or sync failed afterwards.
func (r *File) writeEntry(idx int, e Extent, ts int32) (committed bool, err error) {
	word := packOffset(e)
	n, err := r.f.WriteAt(entryBytes(word), offsetPos(idx))
	if err == nil && n < entrySize {
		err = io.ErrShortWrite
	}
	if err != nil {
		return false, err
	}

	r.hdr.set(idx, e, ts)

	if _, err := r.f.WriteAt(entryBytes(uint32(ts)), timestampPos(idx)); err != nil {
		return true, err
	}
	return true, r.sync()
}

// rollback returns an extent whose record never became reachable and trims
// the file if the extent had grown it.
func (r *File) rollback(e Extent) {
	before := r.alloc.Total()
	after := r.alloc.Release(e)
	if after < before {
		if err := r.f.Truncate(int64(after) * SectorSize); err != nil {
			r.log.Warn("truncate after failed write", "error", err)
		}
	}
}

// Delete removes c. Deleting an absent chunk is a no-op.
func (r *File) Delete(c coord.ChunkCoord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	idx, err := r.index(c)
	if err != nil {
		return err
	}

	old := r.hdr.extent(idx)
	if old.IsZero() {
		return nil
	}

	committed, err := r.writeEntry(idx, Extent{}, 0)
	if !committed {
		return fmt.Errorf("delete %v from %s: %w", c, r.path, err)
	}
	if err != nil {
		return fmt.Errorf("sync header for %v in %s: %w", c, r.path, err)
	}
	r.alloc.Free(old)
	return nil
}

// Chunks yields the coordinates of all present chunks in slot order. Each
// slot is read under the read lock, so the body of the loop may call other
// methods of r.
func (r *File) Chunks() iter.Seq[coord.ChunkCoord] {
	return func(yield func(coord.ChunkCoord) bool) {
		for idx := range coord.ChunksPerRegion {
			r.mu.RLock()
			present := !r.closed && r.hdr.offsets[idx] != 0
			r.mu.RUnlock()

			if present && !yield(coord.ChunkAt(r.coord, idx)) {
				return
			}
		}
	}
}

// Contains reports whether c is present.
func (r *File) Contains(c coord.ChunkCoord) bool {
	_, ok := r.Extent(c)
	return ok
}

// Extent returns the sectors occupied by c.
func (r *File) Extent(c coord.ChunkCoord) (Extent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, err := r.index(c)
	if err != nil || r.closed {
		return Extent{}, false
	}
	e := r.hdr.extent(idx)
	return e, !e.IsZero()
}

// Timestamp returns the time c was last written.
func (r *File) Timestamp(c coord.ChunkCoord) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, err := r.index(c)
	if err != nil || r.closed || r.hdr.offsets[idx] == 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(r.hdr.timestamps[idx]), 0), true
}

// Count returns the number of present chunks.
func (r *File) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

func (r *File) countLocked() int {
	n := 0
	for _, v := range r.hdr.offsets {
		if v != 0 {
			n++
		}
	}
	return n
}

// Stats returns space usage.
func (r *File) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Chunks:         r.countLocked(),
		TotalSectors:   r.alloc.Total(),
		UsedSectors:    r.alloc.UsedSectors(),
		FreeSectors:    r.alloc.FreeSectors(),
		FreeExtents:    r.alloc.FreeRuns(),
		DroppedEntries: r.dropped,
	}
}

// Verify reads and decodes every present chunk. It returns how many chunks
// were checked and the joined errors of those that failed.
func (r *File) Verify() (int, error) {
	var (
		checked int
		errs    []error
	)
	for c := range r.Chunks() {
		if _, _, err := r.Load(c); err != nil {
			if errors.Is(err, ErrClosed) {
				return checked, err
			}
			errs = append(errs, err)
		}
		checked++
	}
	return checked, errors.Join(errs...)
}

// Snapshot copies the whole file to w while holding the read lock, so the
// copy is a consistent image even while other goroutines save chunks.
func (r *File) Snapshot(w io.Writer) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrClosed
	}
	size := int64(r.alloc.Total()) * SectorSize
	n, err := io.Copy(w, io.NewSectionReader(r.f, 0, size))
	if err != nil {
		return n, fmt.Errorf("snapshot %s: %w", r.path, err)
	}
	return n, nil
}

// Sync flushes the file to stable storage.
func (r *File) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.f.Sync()
}

func (r *File) sync() error {
	if !r.opts.sync {
		return nil
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", r.path, err)
	}
	return nil
}

// Close pads the file to a whole number of sectors, flushes it and releases
// the handle. Closing twice is a no-op.
func (r *File) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if size, err := fs.Size(r.f); err != nil {
		errs = append(errs, err)
	} else if rem := size % SectorSize; rem != 0 {
		if err := r.f.Truncate(size + SectorSize - rem); err != nil {
			errs = append(errs, fmt.Errorf("pad %s: %w", r.path, err))
		}
	}
	if err := r.f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync %s: %w", r.path, err))
	}
	if err := r.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *File) release() error {
	if r.opts.lock {
		_ = fs.Unlock(r.f)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", r.path, err)
	}
	return nil
}
