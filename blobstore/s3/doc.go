// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", "worlds/survival/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manifest, err := backup.Backup(ctx, regions, store)
//
// # Features
//
//   - Range reads for restores of large region files
//   - Streaming multipart uploads for snapshots
//   - CRC32C-checked puts for manifests
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - DDBCommitStore for an atomic CURRENT pointer shared by several writers
package s3
