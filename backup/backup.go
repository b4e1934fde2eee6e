package backup

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/regionstore/blobstore"
	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/internal/hash"
	"github.com/hupe1980/regionstore/region"
	"github.com/hupe1980/regionstore/resource"
)

// Source is a set of region files to back up. *regionstore.Store implements it.
type Source interface {
	Regions() ([]coord.RegionCoord, error)
	WithRegion(ctx context.Context, rc coord.RegionCoord, fn func(*region.File) error) error
}

// Backup snapshots every region of src into dst and commits the backup as
// CURRENT. On error nothing is committed; snapshots uploaded before the
// failure stay in dst.
func Backup(ctx context.Context, src Source, dst blobstore.BlobStore, optFns ...Option) (*Manifest, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if !o.compression.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCompression, o.compression)
	}

	regions, err := src.Regions()
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version:     CurrentVersion,
		ID:          uuid.NewString(),
		CreatedAt:   o.now().UTC(),
		Compression: o.compression,
		Regions:     make([]RegionInfo, len(regions)),
	}
	log := o.logger.With("backup", m.ID)
	log.InfoContext(ctx, "backup started", "regions", len(regions), "compression", string(o.compression))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, rc := range regions {
		g.Go(func() error {
			if err := o.resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer o.resources.ReleaseBackground()

			info, err := snapshotRegion(gctx, src, dst, m.ID, rc, o)
			if err != nil {
				return fmt.Errorf("back up %s: %w", rc.FileName(), err)
			}
			m.Regions[i] = info
			log.DebugContext(gctx, "region backed up",
				"region", rc.FileName(),
				"bytes", info.Size,
				"chunks", info.Chunks,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "backup failed", "error", err)
		return nil, err
	}

	if err := writeManifest(ctx, dst, m); err != nil {
		return nil, err
	}
	if err := dst.Put(ctx, blobstore.CurrentName, []byte(m.Path())); err != nil {
		return nil, fmt.Errorf("commit %s: %w", blobstore.CurrentName, err)
	}

	log.InfoContext(ctx, "backup committed", "chunks", m.Chunks(), "manifest", m.Path())
	return m, nil
}

func snapshotRegion(ctx context.Context, src Source, dst blobstore.BlobStore, id string, rc coord.RegionCoord, o options) (RegionInfo, error) {
	info := RegionInfo{X: rc.X, Z: rc.Z, Path: regionBlobName(id, rc, o.compression)}

	w, err := dst.Create(ctx, info.Path)
	if err != nil {
		return info, err
	}

	err = src.WithRegion(ctx, rc, func(f *region.File) error {
		cw, err := o.compression.newWriter(resource.NewRateLimitedWriter(ctx, w, o.resources))
		if err != nil {
			return err
		}
		sum := hash.NewCRC32C()

		info.Chunks = f.Count()
		n, err := f.Snapshot(io.MultiWriter(sum, cw))
		if err != nil {
			_ = cw.Close()
			return err
		}
		if err := cw.Close(); err != nil {
			return err
		}
		info.Size = n
		info.CRC32C = sum.Sum32()
		return nil
	})
	if err != nil {
		abort(w)
		return info, err
	}
	if err := w.Close(); err != nil {
		return info, err
	}
	return info, nil
}

// abort discards a partially written blob.
func abort(w blobstore.WritableBlob) {
	if a, ok := w.(interface{ Abort() error }); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}

// Prune deletes all but the newest keep backups. The backup CURRENT points
// at is never deleted, and neither are blobs of uncommitted backups newer
// than it, which may still be in progress.
func Prune(ctx context.Context, bs blobstore.BlobStore, keep int) (int, error) {
	current, err := Latest(ctx, bs)
	if err != nil {
		return 0, err
	}
	manifests, err := List(ctx, bs)
	if err != nil {
		return 0, err
	}

	var pruned int
	var errs []error
	for i, m := range manifests {
		if len(manifests)-i <= keep || m.ID == current.ID || !m.CreatedAt.Before(current.CreatedAt) {
			continue
		}
		names, err := bs.List(ctx, m.Dir()+"/")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// The manifest goes last so a partially pruned backup stays listable.
		for _, name := range names {
			if name == m.Path() {
				continue
			}
			if err := bs.Delete(ctx, name); err != nil {
				errs = append(errs, err)
			}
		}
		if err := bs.Delete(ctx, m.Path()); err != nil {
			errs = append(errs, err)
			continue
		}
		pruned++
	}
	return pruned, errors.Join(errs...)
}
