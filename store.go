package regionstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/regionstore/codec"
	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/internal/cache"
	"github.com/hupe1980/regionstore/region"
)

// Store maps chunk coordinates to region files in one directory.
//
// Region files are opened lazily and kept open up to the configured bound.
// Store is safe for concurrent use; operations on different regions never
// contend beyond the short critical section that guards the handle table.
type Store struct {
	dir  string
	opts options

	mu       sync.Mutex
	open     *cache.LRU[coord.RegionCoord, *handle]
	draining map[coord.RegionCoord]*handle
	closed   bool

	opening singleflight.Group
}

// handle is an open region file plus its lease count. All fields are guarded
// by Store.mu.
type handle struct {
	file    *region.File
	refs    int
	evicted bool
}

// errNoRegion reports that a read path found no region file on disk.
var errNoRegion = errors.New("region file does not exist")

// Open opens a store rooted at dir, creating the directory if needed.
func Open(dir string, optFns ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if !o.compression.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCompression, o.compression)
	}
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create region directory %s: %w", dir, err)
	}

	s := &Store{
		dir:      dir,
		opts:     o,
		draining: make(map[coord.RegionCoord]*handle),
	}
	s.open = cache.NewLRU(o.maxOpen, s.onEvict)
	return s, nil
}

// Dir returns the directory holding the region files.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of region rc.
func (s *Store) Path(rc coord.RegionCoord) string {
	return filepath.Join(s.dir, rc.FileName())
}

// Lease is a region file held open on behalf of a caller. The file stays open
// until Release, even if the store evicts it in the meantime.
type Lease struct {
	*region.File

	s    *Store
	rc   coord.RegionCoord
	h    *handle
	once sync.Once
}

// Release returns the lease. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.s.release(l.rc, l.h)
	})
}

// Get leases region rc, opening or creating its file when needed. The caller
// must call Release on the returned lease.
func (s *Store) Get(ctx context.Context, rc coord.RegionCoord) (*Lease, error) {
	return s.acquire(ctx, rc, true)
}

// WithRegion leases region rc for the duration of fn.
func (s *Store) WithRegion(ctx context.Context, rc coord.RegionCoord, fn func(*region.File) error) error {
	l, err := s.Get(ctx, rc)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn(l.File)
}

func (s *Store) acquire(ctx context.Context, rc coord.RegionCoord, create bool) (*Lease, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if h := s.lookupLocked(rc); h != nil {
			h.refs++
			s.mu.Unlock()
			return &Lease{File: h.file, s: s, rc: rc, h: h}, nil
		}
		s.mu.Unlock()

		if !create {
			if _, err := s.opts.fs.Stat(s.Path(rc)); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil, errNoRegion
				}
				return nil, fmt.Errorf("stat region %s: %w", rc.FileName(), err)
			}
		}

		// The handle may be evicted again before this caller takes its
		// reference, in which case the loop opens it once more.
		if _, err, _ := s.opening.Do(rc.FileName(), func() (any, error) {
			return nil, s.openRegion(ctx, rc)
		}); err != nil {
			return nil, err
		}
	}
}

// openRegion opens rc and adds it to the handle table unless another caller
// already did.
func (s *Store) openRegion(ctx context.Context, rc coord.RegionCoord) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.open.Peek(rc); ok {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.draining[rc]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	start := time.Now()
	f, err := region.Open(s.Path(rc), rc,
		region.WithFileSystem(s.opts.fs),
		region.WithLogger(s.opts.logger.Logger),
		region.WithSync(s.opts.sync),
		region.WithClock(s.opts.now),
	)
	elapsed := time.Since(start)
	s.opts.metricsCollector.RecordOpen(elapsed, err)
	s.opts.logger.LogOpen(ctx, rc, elapsed, err)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Join(ErrClosed, f.Close())
	}
	s.open.Add(rc, &handle{file: f})
	return nil
}

// lookupLocked finds an open handle for rc, reviving a draining one so that
// a region is never open twice.
func (s *Store) lookupLocked(rc coord.RegionCoord) *handle {
	if h, ok := s.open.Get(rc); ok {
		return h
	}
	if h, ok := s.draining[rc]; ok {
		delete(s.draining, rc)
		h.evicted = false
		s.open.Add(rc, h)
		return h
	}
	return nil
}

// onEvict runs under s.mu via the LRU.
func (s *Store) onEvict(rc coord.RegionCoord, h *handle) {
	s.opts.metricsCollector.RecordEvict()
	if h.refs > 0 {
		h.evicted = true
		s.draining[rc] = h
		s.opts.logger.LogEvict(context.Background(), rc, true, nil)
		return
	}
	err := h.file.Close()
	s.opts.logger.LogEvict(context.Background(), rc, false, err)
}

func (s *Store) release(rc coord.RegionCoord, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h.refs--
	if !h.evicted || h.refs > 0 {
		return
	}
	if s.draining[rc] == h {
		delete(s.draining, rc)
	}
	h.evicted = false
	if err := h.file.Close(); err != nil {
		s.opts.logger.LogEvict(context.Background(), rc, false, err)
	}
}

// CloseRegion closes region rc if it is open. A leased region is closed when
// its last lease is released.
func (s *Store) CloseRegion(rc coord.RegionCoord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.open.Remove(rc)
	if !ok {
		return nil
	}
	if h.refs > 0 {
		h.evicted = true
		s.draining[rc] = h
		return nil
	}
	return h.file.Close()
}

// Close closes every region file, including leased ones. Further use of the
// store or of outstanding leases returns ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, h := range s.open.Drain() {
		errs = append(errs, h.file.Close())
	}
	for rc, h := range s.draining {
		errs = append(errs, h.file.Close())
		delete(s.draining, rc)
	}
	return errors.Join(errs...)
}

// Load returns the payload of chunk c. found is false when the chunk has
// never been saved or was deleted.
func (s *Store) Load(ctx context.Context, c coord.ChunkCoord) (payload []byte, found bool, err error) {
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordLoad(time.Since(start), len(payload), found, err)
		s.opts.logger.LogLoad(ctx, c, len(payload), found, err)
	}()

	l, err := s.acquire(ctx, coord.RegionOf(c), false)
	if errors.Is(err, errNoRegion) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer l.Release()

	return l.Load(c)
}

// Save stores payload for chunk c with the store's default compression.
func (s *Store) Save(ctx context.Context, c coord.ChunkCoord, payload []byte) error {
	return s.SaveWith(ctx, c, payload, s.opts.compression)
}

// SaveWith stores payload for chunk c with compression comp.
func (s *Store) SaveWith(ctx context.Context, c coord.ChunkCoord, payload []byte, comp codec.Compression) (err error) {
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordSave(time.Since(start), len(payload), err)
		s.opts.logger.LogSave(ctx, c, len(payload), err)
	}()

	l, err := s.acquire(ctx, coord.RegionOf(c), true)
	if err != nil {
		return err
	}
	defer l.Release()

	return l.Save(c, payload, comp)
}

// Delete removes chunk c. Deleting an absent chunk is not an error.
func (s *Store) Delete(ctx context.Context, c coord.ChunkCoord) (err error) {
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordDelete(time.Since(start), err)
		s.opts.logger.LogDelete(ctx, c, err)
	}()

	l, err := s.acquire(ctx, coord.RegionOf(c), false)
	if errors.Is(err, errNoRegion) {
		return nil
	}
	if err != nil {
		return err
	}
	defer l.Release()

	return l.Delete(c)
}

// Contains reports whether chunk c is present.
func (s *Store) Contains(ctx context.Context, c coord.ChunkCoord) (bool, error) {
	var ok bool
	err := s.withExisting(ctx, coord.RegionOf(c), func(f *region.File) error {
		ok = f.Contains(c)
		return nil
	})
	return ok, err
}

// Chunks returns the present chunks of region rc in slot order.
func (s *Store) Chunks(ctx context.Context, rc coord.RegionCoord) ([]coord.ChunkCoord, error) {
	var chunks []coord.ChunkCoord
	err := s.withExisting(ctx, rc, func(f *region.File) error {
		chunks = slices.Collect(f.Chunks())
		return nil
	})
	return chunks, err
}

// Count returns the number of present chunks in region rc.
func (s *Store) Count(ctx context.Context, rc coord.RegionCoord) (int, error) {
	var n int
	err := s.withExisting(ctx, rc, func(f *region.File) error {
		n = f.Count()
		return nil
	})
	return n, err
}

// withExisting runs fn on region rc if its file exists.
func (s *Store) withExisting(ctx context.Context, rc coord.RegionCoord, fn func(*region.File) error) error {
	l, err := s.acquire(ctx, rc, false)
	if errors.Is(err, errNoRegion) {
		return nil
	}
	if err != nil {
		return err
	}
	defer l.Release()
	return fn(l.File)
}

// Regions lists the regions that have a file in the store directory, ordered
// by X then Z. Files that do not follow the r.X.Z.mca naming are ignored.
func (s *Store) Regions() ([]coord.RegionCoord, error) {
	entries, err := s.opts.fs.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list regions in %s: %w", s.dir, err)
	}

	var out []coord.RegionCoord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rc, ok := coord.ParseFileName(e.Name())
		if !ok {
			continue
		}
		out = append(out, rc)
	}
	slices.SortFunc(out, func(a, b coord.RegionCoord) int {
		if a.X != b.X {
			return cmp.Compare(a.X, b.X)
		}
		return cmp.Compare(a.Z, b.Z)
	})
	return out, nil
}

// Verify reads and decodes every chunk of every region in the store. It
// returns the number of chunks checked and the joined problems found.
// Parallelism follows the resource controller's worker count.
func (s *Store) Verify(ctx context.Context) (int, error) {
	regions, err := s.Regions()
	if err != nil {
		return 0, err
	}

	var (
		mu      sync.Mutex
		checked int
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.resources.Workers())
	for _, rc := range regions {
		g.Go(func() error {
			if err := s.opts.resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer s.opts.resources.ReleaseBackground()

			var n int
			verr := s.withExisting(gctx, rc, func(f *region.File) error {
				var err error
				n, err = f.Verify()
				return err
			})
			s.opts.logger.LogVerify(gctx, rc, n, verr)

			mu.Lock()
			checked += n
			if verr != nil {
				errs = append(errs, verr)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return checked, err
	}
	return checked, errors.Join(errs...)
}

// Stats describes the state of the handle table.
type Stats struct {
	OpenRegions     int
	DrainingRegions int
	MaxOpenRegions  int
	CacheHits       int64
	CacheMisses     int64
}

// Stats returns a snapshot of the handle table.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits, misses := s.open.Stats()
	return Stats{
		OpenRegions:     s.open.Len(),
		DrainingRegions: len(s.draining),
		MaxOpenRegions:  s.open.Capacity(),
		CacheHits:       hits,
		CacheMisses:     misses,
	}
}
