package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/regionstore/blobstore"
	"github.com/hupe1980/regionstore/internal/hash"
	"github.com/hupe1980/regionstore/region"
	"github.com/hupe1980/regionstore/resource"
)

// Restore writes the region files of the latest backup in src into dir.
//
// Each region is decompressed into a temporary file, checked against the
// recorded size and checksum, opened as a region file and only then renamed
// over the existing file. No Store may have dir open while Restore runs.
func Restore(ctx context.Context, src blobstore.BlobStore, dir string, optFns ...Option) (*Manifest, error) {
	m, err := Latest(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := RestoreManifest(ctx, src, m, dir, optFns...); err != nil {
		return nil, err
	}
	return m, nil
}

// RestoreManifest restores the backup described by m into dir.
func RestoreManifest(ctx context.Context, src blobstore.BlobStore, m *Manifest, dir string, optFns ...Option) error {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create restore directory %s: %w", dir, err)
	}

	log := o.logger.With("backup", m.ID)
	log.InfoContext(ctx, "restore started", "regions", len(m.Regions), "dir", dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, ri := range m.Regions {
		g.Go(func() error {
			if err := o.resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer o.resources.ReleaseBackground()

			if err := restoreRegion(gctx, src, m.Compression, ri, dir, o); err != nil {
				return fmt.Errorf("restore %s: %w", ri.Coord().FileName(), err)
			}
			log.DebugContext(gctx, "region restored", "region", ri.Coord().FileName(), "bytes", ri.Size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "restore failed", "error", err)
		return err
	}

	log.InfoContext(ctx, "restore completed", "chunks", m.Chunks())
	return nil
}

func restoreRegion(ctx context.Context, src blobstore.BlobStore, c Compression, ri RegionInfo, dir string, o options) (err error) {
	rc := ri.Coord()
	final := filepath.Join(dir, rc.FileName())
	tmp := final + ".restore-" + uuid.NewString()

	defer func() {
		if err != nil {
			_ = o.fs.Remove(tmp)
		}
	}()

	if err := download(ctx, src, c, ri, tmp, o); err != nil {
		return err
	}

	// The snapshot must still be a well-formed region file.
	f, err := region.Open(tmp, rc, region.WithFileSystem(o.fs), region.WithLogger(o.logger))
	if err != nil {
		return err
	}
	dropped := f.Stats().DroppedEntries
	if err := f.Close(); err != nil {
		return err
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d invalid header entries", region.ErrCorruption, dropped)
	}

	return o.fs.Rename(tmp, final)
}

func download(ctx context.Context, src blobstore.BlobStore, c Compression, ri RegionInfo, tmp string, o options) error {
	blob, err := src.Open(ctx, ri.Path)
	if err != nil {
		return err
	}
	defer func() { _ = blob.Close() }()

	body, err := blobstore.NewReader(ctx, blob)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	dec, err := c.newReader(resource.NewRateLimitedReader(ctx, body, o.resources))
	if err != nil {
		return err
	}
	defer func() { _ = dec.Close() }()

	out, err := o.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	sum := hash.NewCRC32C()
	n, err := io.Copy(io.MultiWriter(out, sum), dec)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if n != ri.Size || sum.Sum32() != ri.CRC32C {
		return fmt.Errorf("%w: got %d bytes crc32c %08x, want %d bytes crc32c %08x",
			ErrChecksumMismatch, n, sum.Sum32(), ri.Size, ri.CRC32C)
	}
	return nil
}
