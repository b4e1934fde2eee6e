package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/regionstore/internal/fs"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	}
}

func TestBlobStore_Lifecycle(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// 1. Create a blob
			blobName := "backups/a/r.0.0.mca.lz4"
			data := []byte("hello world, this is a test blob for region backups")

			w, err := store.Create(ctx, blobName)
			require.NoError(t, err)
			n, err := w.Write(data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			require.NoError(t, w.Sync())
			require.NoError(t, w.Close())

			// 2. Open and ReadAt
			blob, err := store.Open(ctx, blobName)
			require.NoError(t, err)
			defer blob.Close()
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err = blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			require.Equal(t, "world", string(buf))

			// 3. ReadRange
			r, err := blob.ReadRange(ctx, 13, 4)
			require.NoError(t, err)
			content, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			require.Equal(t, "this", string(content))

			// 4. Put and List
			require.NoError(t, store.Put(ctx, "CURRENT", []byte("backups/a/MANIFEST")))
			require.NoError(t, store.Put(ctx, "backups/a/MANIFEST", []byte("{}")))

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"CURRENT", "backups/a/MANIFEST", blobName}, all)

			scoped, err := store.List(ctx, "backups/")
			require.NoError(t, err)
			assert.Equal(t, []string{"backups/a/MANIFEST", blobName}, scoped)

			got, err := ReadAll(ctx, store, "CURRENT")
			require.NoError(t, err)
			assert.Equal(t, "backups/a/MANIFEST", string(got))

			// 5. Delete
			require.NoError(t, store.Delete(ctx, "CURRENT"))
			require.NoError(t, store.Delete(ctx, "CURRENT"))
			_, err = store.Open(ctx, "CURRENT")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStore_ReadRangeBoundaries(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "boundary.bin", []byte("0123456789")))

			blob, err := store.Open(ctx, "boundary.bin")
			require.NoError(t, err)
			defer blob.Close()

			r, err := blob.ReadRange(ctx, 0, 10)
			require.NoError(t, err)
			content, _ := io.ReadAll(r)
			r.Close()
			require.Equal(t, "0123456789", string(content))

			r, err = blob.ReadRange(ctx, 8, 5)
			require.NoError(t, err)
			content, err = io.ReadAll(r)
			require.NoError(t, err)
			r.Close()
			require.Equal(t, "89", string(content))

			_, err = blob.ReadRange(ctx, 20, 5)
			require.ErrorIs(t, err, io.EOF)

			buf := make([]byte, 4)
			n, err := blob.ReadAt(ctx, buf, 8)
			assert.Equal(t, 2, n)
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestBlobStore_EmptyBlob(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "empty", nil))

			blob, err := store.Open(ctx, "empty")
			require.NoError(t, err)
			defer blob.Close()

			r, err := NewReader(ctx, blob)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Empty(t, data)

			data, err = ReadAll(ctx, store, "empty")
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestLocalStore_CreateIsInvisibleUntilClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewLocalStore(dir)

	w, err := store.Create(ctx, "big.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = store.Open(ctx, "big.bin")
	require.ErrorIs(t, err, ErrNotFound)
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), os.ErrClosed)

	data, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, "partial", string(data))
}

func TestLocalStore_FailedPutKeepsOldContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ffs := fs.NewFaultyFS(fs.Default)
	store := NewLocalStoreFS(dir, ffs)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("old")))

	ffs.AddRule(tempMarker, fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	require.Error(t, store.Put(ctx, "CURRENT", []byte("new")))
	ffs.Disarm()

	data, err := ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}
