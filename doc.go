// Package regionstore persists voxel-world chunk data in region files.
//
// A region file holds the 32x32 chunks of one region in fixed 4096-byte
// sectors behind a 1024-entry offset table and a matching timestamp table.
// Chunks are addressed by their 2D chunk coordinate; the store maps each
// coordinate to a region file and a slot, opens files on demand and keeps a
// bounded number of them open.
//
// # Quick Start
//
//	ctx := context.Background()
//	store, _ := regionstore.Open("./world/region")
//	defer store.Close()
//
//	c := coord.Chunk(-3, 17)
//	_ = store.Save(ctx, c, nbtBytes)
//	data, found, _ := store.Load(ctx, c)
//
// Payloads are opaque: the store compresses them (zlib by default, see
// [WithCompression]) and never interprets their contents.
//
// # Regions
//
// [Store.Get] leases a [region.File] for direct access; [Store.WithRegion]
// scopes the lease to a callback. Leased handles are never closed underneath
// the caller: when the open-handle bound evicts a leased region, it is closed
// after its last lease is released.
//
// # Errors
//
// A missing chunk is not an error: Load reports found == false.
// [ErrFormat] and [ErrCorruption] mark files or records that need repair.
// IO errors from the file system are returned wrapped and are never retried.
//
// # Backups
//
// Package backup snapshots region files into a blob store (local, S3, MinIO)
// and restores them.
package regionstore
