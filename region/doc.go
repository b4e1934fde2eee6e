// Package region implements a single region file: 1024 chunk slots stored in
// 4096-byte sectors behind an offset and timestamp table.
//
// # Layout
//
// All integers are big-endian.
//
//	[0, 4096)      1024 offset entries, index<<8 | count (sectors)
//	[4096, 8192)   1024 timestamp entries, int32 Unix seconds
//	[8192, ...)    sectors; a chunk record starts at its first sector:
//	               uint32 length | uint8 compression | length-1 payload bytes
//
// Bytes between the end of a record and the end of its extent are slack and
// are never interpreted.
//
// # Durability
//
// Save writes and syncs the record before it touches the header, so a crash
// leaves either the old or the new offset entry pointing at a complete record.
// A relocated chunk's old sectors are freed only after the header points at
// the new ones. Overwrites in place (the record still fits its extent) are not
// atomic with respect to a crash.
//
// # Concurrency
//
// A File is safe for concurrent use. Save and Delete hold the file's write
// lock for placement, data write and header update; Load holds the read lock.
package region
