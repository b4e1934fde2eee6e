// Package fs provides the file abstraction region files are written through.
//
//   - [File]: an open file with positional reads and writes
//   - [FileSystem]: open, remove, rename, stat, mkdir and directory listing
//   - [LocalFS]: the os-backed implementation, exported as [Default]
//   - [FaultyFS]: fault injection for tests (short writes, failing syncs)
//
// Region files are only ever accessed with ReadAt and WriteAt, so a single
// handle can serve concurrent readers without a shared seek offset.
//
// Operations take no context.Context: local file IO is not interruptible at
// the syscall level. Remote storage goes through package blobstore instead.
package fs
