// Package blobstore provides the storage abstraction backups are written to.
//
// BlobStore is the interface for reading and writing named blobs (region
// snapshots, manifests, the CURRENT pointer). Names use forward slashes.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local file system, atomic Put through rename
//   - MemoryStore: in memory, for tests
//   - s3.Store: Amazon S3 with range reads and streaming multipart uploads
//   - s3.DDBCommitStore: s3.Store plus DynamoDB for an atomic CURRENT pointer
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)            // Open for reading
//	    Create(ctx, name) (WritableBlob, error)  // Create for streaming writes
//	    Put(ctx, name, data) error               // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
