// Package backup copies region files into a blob store and restores them.
//
// A backup is a set of compressed region snapshots plus a JSON manifest:
//
//	backups/<id>/r.<x>.<z>.mca.lz4
//	backups/<id>/MANIFEST
//	CURRENT                        -> backups/<id>/MANIFEST
//
// Each snapshot is taken under the region's read lock, so it is a consistent
// image of that region even while chunks are being saved elsewhere. Regions
// are snapshotted independently; a backup is not a point-in-time image of
// the whole world.
//
// CURRENT is written last. A backup whose CURRENT commit never happened is
// invisible to Latest and Restore.
package backup
