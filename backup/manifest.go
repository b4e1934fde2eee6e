package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/regionstore/blobstore"
	"github.com/hupe1980/regionstore/coord"
)

const (
	// ManifestFileName is the name of the manifest inside a backup directory.
	ManifestFileName = "MANIFEST"

	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1

	prefix = "backups/"
)

var (
	// ErrNoBackup is returned when the blob store holds no committed backup.
	ErrNoBackup = errors.New("no backup")

	// ErrUnsupportedVersion is returned for manifests written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// ErrChecksumMismatch is returned when restored bytes do not match the
	// checksum recorded at backup time.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Manifest describes one backup.
type Manifest struct {
	Version     int          `json:"version"`
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"created_at"`
	Compression Compression  `json:"compression"`
	Regions     []RegionInfo `json:"regions"`
}

// RegionInfo describes one region snapshot.
type RegionInfo struct {
	X      int32  `json:"x"`
	Z      int32  `json:"z"`
	Path   string `json:"path"`   // Blob name
	Size   int64  `json:"size"`   // Uncompressed size in bytes
	CRC32C uint32 `json:"crc32c"` // Of the uncompressed bytes
	Chunks int    `json:"chunks"`
}

// Coord returns the region the snapshot belongs to.
func (ri RegionInfo) Coord() coord.RegionCoord {
	return coord.Region(ri.X, ri.Z)
}

// Dir returns the blob name prefix of the backup.
func (m *Manifest) Dir() string {
	return dirOf(m.ID)
}

// Path returns the blob name of the manifest.
func (m *Manifest) Path() string {
	return path.Join(m.Dir(), ManifestFileName)
}

// Chunks returns the number of chunks across all regions.
func (m *Manifest) Chunks() int {
	var n int
	for _, r := range m.Regions {
		n += r.Chunks
	}
	return n
}

func dirOf(id string) string {
	return prefix + id
}

func regionBlobName(id string, rc coord.RegionCoord, c Compression) string {
	return path.Join(dirOf(id), rc.FileName()+c.ext())
}

// Latest loads the manifest CURRENT points at.
func Latest(ctx context.Context, bs blobstore.BlobStore) (*Manifest, error) {
	current, err := blobstore.ReadAll(ctx, bs, blobstore.CurrentName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNoBackup
		}
		return nil, fmt.Errorf("read %s: %w", blobstore.CurrentName, err)
	}
	return Load(ctx, bs, strings.TrimSpace(string(current)))
}

// Load loads the manifest stored at name.
func Load(ctx context.Context, bs blobstore.BlobStore, name string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, bs, name)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", name, err)
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", name, err)
	}
	if m.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	if !m.Compression.valid() {
		return nil, fmt.Errorf("decode manifest %s: %w: %q", name, ErrInvalidCompression, m.Compression)
	}
	return m, nil
}

// List returns every readable manifest, oldest first. Unreadable manifests
// are skipped so that one damaged backup does not hide the others.
func List(ctx context.Context, bs blobstore.BlobStore) ([]*Manifest, error) {
	names, err := bs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var manifests []*Manifest
	for _, name := range names {
		if path.Base(name) != ManifestFileName {
			continue
		}
		m, err := Load(ctx, bs, name)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}
	slices.SortFunc(manifests, func(a, b *Manifest) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return manifests, nil
}

func writeManifest(ctx context.Context, bs blobstore.BlobStore, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := bs.Put(ctx, m.Path(), data); err != nil {
		return fmt.Errorf("write manifest %s: %w", m.Path(), err)
	}
	return nil
}
