// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: the operations the local blob store needs
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that fails opens, writes, syncs or renames
//     for paths matching a pattern, optionally only a fixed number of times
//
// Tests inject [FaultyFS] to exercise retry and fallback paths:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("complete", fs.Fault{FailRename: true, Times: 2})
//	store := blobstore.NewLocalStore(dir, blobstore.WithFileSystem(ffs))
//
// This package does not take context.Context parameters. Local filesystem
// operations are not interruptible at the syscall level.
package fs
