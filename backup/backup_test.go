package backup_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/regionstore"
	"github.com/hupe1980/regionstore/backup"
	"github.com/hupe1980/regionstore/blobstore"
	"github.com/hupe1980/regionstore/coord"
	"github.com/hupe1980/regionstore/resource"
)

func payload(c coord.ChunkCoord) []byte {
	return []byte(strings.Repeat(fmt.Sprintf("%d/%d;", c.X, c.Z), 50))
}

var worldChunks = []coord.ChunkCoord{
	coord.Chunk(0, 0),
	coord.Chunk(5, 9),
	coord.Chunk(-1, -1),
	coord.Chunk(-40, 70),
	coord.Chunk(100, 3),
}

func newWorld(t *testing.T) *regionstore.Store {
	t.Helper()
	s, err := regionstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	for _, c := range worldChunks {
		require.NoError(t, s.Save(ctx, c, payload(c)))
	}
	return s
}

func assertWorld(t *testing.T, dir string) {
	t.Helper()
	s, err := regionstore.Open(dir)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, c := range worldChunks {
		data, found, err := s.Load(ctx, c)
		require.NoError(t, err)
		require.True(t, found, c.String())
		assert.Equal(t, payload(c), data)
	}
	n, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(worldChunks), n)
}

func TestBackupRestore(t *testing.T) {
	for _, comp := range []backup.Compression{backup.LZ4, backup.Zstd, backup.None} {
		t.Run(string(comp), func(t *testing.T) {
			ctx := context.Background()
			world := newWorld(t)
			bs := blobstore.NewMemoryStore()

			m, err := backup.Backup(ctx, world, bs, backup.WithCompression(comp))
			require.NoError(t, err)
			assert.Equal(t, comp, m.Compression)
			assert.Len(t, m.Regions, 4)
			assert.Equal(t, len(worldChunks), m.Chunks())

			current, err := blobstore.ReadAll(ctx, bs, blobstore.CurrentName)
			require.NoError(t, err)
			assert.Equal(t, m.Path(), string(current))

			dir := filepath.Join(t.TempDir(), "restored")
			restored, err := backup.Restore(ctx, bs, dir)
			require.NoError(t, err)
			assert.Equal(t, m.ID, restored.ID)

			assertWorld(t, dir)
		})
	}
}

func TestBackup_RegionWithDroppedEntryRestores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Slot 0 of r.9.9 points past the end of a header-only file.
	raw := make([]byte, 2*4096)
	copy(raw, []byte{0, 0, 2, 1})
	require.NoError(t, os.WriteFile(filepath.Join(dir, coord.Region(9, 9).FileName()), raw, 0o644))

	world, err := regionstore.Open(dir)
	require.NoError(t, err)
	defer world.Close()
	for _, c := range worldChunks {
		require.NoError(t, world.Save(ctx, c, payload(c)))
	}

	bs := blobstore.NewMemoryStore()
	m, err := backup.Backup(ctx, world, bs)
	require.NoError(t, err)
	assert.Len(t, m.Regions, 5)

	restoreDir := filepath.Join(t.TempDir(), "restored")
	_, err = backup.Restore(ctx, bs, restoreDir)
	require.NoError(t, err)
	assertWorld(t, restoreDir)
}

func TestBackup_LocalStoreWithLimits(t *testing.T) {
	ctx := context.Background()
	world := newWorld(t)
	bs := blobstore.NewLocalStore(t.TempDir())
	rc := resource.NewController(resource.Config{
		MaxBackgroundWorkers: 2,
		IOLimitBytesPerSec:   64 << 20,
	})

	m, err := backup.Backup(ctx, world, bs, backup.WithResourceController(rc), backup.WithConcurrency(2))
	require.NoError(t, err)

	names, err := bs.List(ctx, m.Dir()+"/")
	require.NoError(t, err)
	assert.Len(t, names, len(m.Regions)+1)

	dir := t.TempDir()
	_, err = backup.Restore(ctx, bs, dir, backup.WithResourceController(rc))
	require.NoError(t, err)
	assertWorld(t, dir)
}

func TestBackup_ManifestOrder(t *testing.T) {
	ctx := context.Background()
	world := newWorld(t)

	m, err := backup.Backup(ctx, world, blobstore.NewMemoryStore())
	require.NoError(t, err)

	regions, err := world.Regions()
	require.NoError(t, err)
	require.Len(t, m.Regions, len(regions))
	for i, ri := range m.Regions {
		assert.Equal(t, regions[i], ri.Coord())
		assert.Equal(t, fmt.Sprintf("backups/%s/%s.lz4", m.ID, regions[i].FileName()), ri.Path)
		assert.Zero(t, ri.Size%4096)
	}
}

func TestLatest_NoBackup(t *testing.T) {
	_, err := backup.Latest(context.Background(), blobstore.NewMemoryStore())
	assert.ErrorIs(t, err, backup.ErrNoBackup)

	_, err = backup.Restore(context.Background(), blobstore.NewMemoryStore(), t.TempDir())
	assert.ErrorIs(t, err, backup.ErrNoBackup)
}

func TestBackup_InvalidCompression(t *testing.T) {
	_, err := backup.Backup(context.Background(), newWorld(t), blobstore.NewMemoryStore(), backup.WithCompression("brotli"))
	assert.ErrorIs(t, err, backup.ErrInvalidCompression)
}

// failingStore fails Put for names containing match.
type failingStore struct {
	*blobstore.MemoryStore
	match string
}

func (f failingStore) Put(ctx context.Context, name string, data []byte) error {
	if strings.Contains(name, f.match) {
		return errors.New("put failed")
	}
	return f.MemoryStore.Put(ctx, name, data)
}

func TestBackup_NothingCommittedOnFailure(t *testing.T) {
	ctx := context.Background()
	world := newWorld(t)
	mem := blobstore.NewMemoryStore()

	first, err := backup.Backup(ctx, world, mem)
	require.NoError(t, err)

	_, err = backup.Backup(ctx, world, failingStore{MemoryStore: mem, match: backup.ManifestFileName})
	require.Error(t, err)

	latest, err := backup.Latest(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestRestore_ChecksumMismatchKeepsExistingFiles(t *testing.T) {
	ctx := context.Background()
	world := newWorld(t)
	mem := blobstore.NewMemoryStore()

	m, err := backup.Backup(ctx, world, mem, backup.WithCompression(backup.None))
	require.NoError(t, err)

	target := m.Regions[0]
	// Flip a byte in the chunk data area; the header stays valid.
	require.True(t, mem.Corrupt(target.Path, 8192+100))

	dir := t.TempDir()
	existing := filepath.Join(dir, target.Coord().FileName())
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	_, err = backup.Restore(ctx, mem, dir)
	require.ErrorIs(t, err, backup.ErrChecksumMismatch)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".restore-")
	}
}

func TestRestore_MissingSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()

	m, err := backup.Backup(ctx, newWorld(t), mem)
	require.NoError(t, err)
	require.NoError(t, mem.Delete(ctx, m.Regions[1].Path))

	_, err = backup.Restore(ctx, mem, t.TempDir())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	world := newWorld(t)
	mem := blobstore.NewMemoryStore()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 4 {
		at := base.Add(time.Duration(i) * time.Hour)
		m, err := backup.Backup(ctx, world, mem, backup.WithClock(func() time.Time { return at }))
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	manifests, err := backup.List(ctx, mem)
	require.NoError(t, err)
	require.Len(t, manifests, 4)
	for i, m := range manifests {
		assert.Equal(t, ids[i], m.ID)
	}

	pruned, err := backup.Prune(ctx, mem, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	manifests, err = backup.List(ctx, mem)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, ids[2], manifests[0].ID)
	assert.Equal(t, ids[3], manifests[1].ID)

	leftovers, err := mem.List(ctx, "backups/"+ids[0])
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	latest, err := backup.Latest(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, ids[3], latest.ID)
}

func TestLoad_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "backups/x/MANIFEST", []byte(`{"version":99,"id":"x","compression":"lz4"}`)))
	require.NoError(t, mem.Put(ctx, blobstore.CurrentName, []byte("backups/x/MANIFEST")))

	_, err := backup.Latest(ctx, mem)
	assert.ErrorIs(t, err, backup.ErrUnsupportedVersion)
}
