// Package vfs is the file-store abstraction beneath the kernel's open-file
// table. A FileSystem resolves a path to an open File; the kernel owns each
// File it receives and closes it exactly once.
//
// Two stores are provided:
//
//   - memfs: an in-memory tree, used by tests and the simulator
//   - diskfs: a store rooted at a host directory
//
// Files are accessed positionally (ReadAt/WriteAt). Offsets belong to the
// caller, which lets several descriptors share one offset above this layer.
//
//	fs := memfs.New()
//	f, err := fs.OpenFile("/notes.txt", vfs.O_RDWR|vfs.O_CREATE, 0644)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Close()
package vfs
