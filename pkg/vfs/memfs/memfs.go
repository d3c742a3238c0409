// Package memfs provides an in-memory file store.
// It backs the kernel in tests and in the simulator.
package memfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"os161/pkg/kern/errno"
	vfs "os161/pkg/vfs"
)

// ErrFileNotFound is returned when a file is not found.
var ErrFileNotFound = fmt.Errorf("memfs: file not found: %w", errno.ENOENT)

// ErrFileExists is returned when a file already exists.
var ErrFileExists = fmt.Errorf("memfs: file already exists: %w", errno.EEXIST)

// ErrNotDirectory is returned when a path is not a directory.
var ErrNotDirectory = fmt.Errorf("memfs: not a directory: %w", errno.ENOTDIR)

// ErrIsDirectory is returned when an operation requires a non-directory.
var ErrIsDirectory = fmt.Errorf("memfs: is a directory: %w", errno.EISDIR)

// memNode represents a node in the filesystem (file or directory).
type memNode struct {
	mu       sync.RWMutex
	data     []byte
	isDir    bool
	children map[string]*memNode
	mode     os.FileMode
	mtime    time.Time
}

// newMemNode creates a new memory node.
func newMemNode(isDir bool, mode os.FileMode) *memNode {
	n := &memNode{
		isDir: isDir,
		mode:  mode,
		mtime: time.Now(),
	}
	if isDir {
		n.children = make(map[string]*memNode)
	}
	return n
}

// FS represents an in-memory filesystem.
type FS struct {
	mu   sync.RWMutex
	root *memNode
	// open counts handles returned by OpenFile and not yet closed.
	open atomic.Int64
}

// New creates a new in-memory filesystem.
func New() *FS {
	return &FS{
		root: newMemNode(true, os.ModeDir|0755),
	}
}

// lookup walks the tree to path. Caller holds fs.mu.
func (fs *FS) lookup(path string) (*memNode, error) {
	node := fs.root
	for _, part := range vfs.Components(path) {
		if !node.isDir {
			return nil, ErrNotDirectory
		}
		child, ok := node.children[part]
		if !ok {
			return nil, ErrFileNotFound
		}
		node = child
	}
	return node, nil
}

// OpenFile implements vfs.FileSystem.OpenFile.
func (fs *FS) OpenFile(path string, flags int, perm os.FileMode) (vfs.File, error) {
	if err := vfs.ValidatePath(path); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, err := fs.lookup(path)
	switch {
	case err == nil:
		if flags&vfs.O_CREATE != 0 && flags&vfs.O_EXCL != 0 {
			return nil, ErrFileExists
		}
		if node.isDir && vfs.CanWrite(flags) {
			return nil, ErrIsDirectory
		}
		if flags&vfs.O_TRUNC != 0 && vfs.CanWrite(flags) {
			node.mu.Lock()
			node.data = nil
			node.mtime = time.Now()
			node.mu.Unlock()
		}
	case errors.Is(err, ErrFileNotFound) && flags&vfs.O_CREATE != 0:
		dir, base := vfs.Split(path)
		parent, err := fs.lookup(dir)
		if err != nil {
			return nil, err
		}
		if !parent.isDir {
			return nil, ErrNotDirectory
		}
		node = newMemNode(false, perm&0777)
		parent.children[base] = node
	default:
		return nil, err
	}

	fs.open.Add(1)
	return &memFile{
		fs:    fs,
		name:  vfs.Clean(path),
		node:  node,
		flags: flags,
	}, nil
}

// Mkdir creates a directory. The parent must exist.
func (fs *FS) Mkdir(path string, perm os.FileMode) error {
	if err := vfs.ValidatePath(path); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := fs.lookup(path); err == nil {
		return ErrFileExists
	}

	dir, base := vfs.Split(path)
	parent, err := fs.lookup(dir)
	if err != nil {
		return err
	}
	if !parent.isDir {
		return ErrNotDirectory
	}

	parent.children[base] = newMemNode(true, os.ModeDir|perm&0777)
	return nil
}

// WriteFile replaces the contents of path, creating it if necessary.
func (fs *FS) WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := fs.OpenFile(path, vfs.O_WRONLY|vfs.O_CREATE|vfs.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile returns a copy of the contents of path.
func (fs *FS) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	node, err := fs.lookup(path)
	fs.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if node.isDir {
		return nil, ErrIsDirectory
	}

	node.mu.RLock()
	defer node.mu.RUnlock()
	return append([]byte(nil), node.data...), nil
}

// OpenHandles returns the number of handles that have been opened and not
// yet closed.
func (fs *FS) OpenHandles() int {
	return int(fs.open.Load())
}

// memFile is a file backed by a memNode.
type memFile struct {
	fs     *FS
	name   string
	node   *memNode
	flags  int
	closed atomic.Bool
}

func (f *memFile) ReadAt(b []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, vfs.ErrClosedFile
	}
	if !vfs.CanRead(f.flags) {
		return 0, vfs.ErrPermissionDenied
	}
	if off < 0 {
		return 0, vfs.ErrInvalidOffset
	}
	if f.node.isDir {
		return 0, ErrIsDirectory
	}

	f.node.mu.RLock()
	defer f.node.mu.RUnlock()

	if off >= int64(len(f.node.data)) {
		return 0, io.EOF
	}

	n := copy(b, f.node.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(b []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, vfs.ErrClosedFile
	}
	if !vfs.CanWrite(f.flags) {
		return 0, vfs.ErrPermissionDenied
	}
	if off < 0 {
		return 0, vfs.ErrInvalidOffset
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	needed := off + int64(len(b))
	if needed > int64(len(f.node.data)) {
		newData := make([]byte, needed)
		copy(newData, f.node.data)
		f.node.data = newData
	}

	copy(f.node.data[off:], b)
	f.node.mtime = time.Now()
	return len(b), nil
}

func (f *memFile) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return vfs.ErrClosedFile
	}
	f.fs.open.Add(-1)
	return nil
}

func (f *memFile) Stat() (vfs.FileInfo, error) {
	if f.closed.Load() {
		return vfs.FileInfo{}, vfs.ErrClosedFile
	}

	f.node.mu.RLock()
	defer f.node.mu.RUnlock()

	_, base := vfs.Split(f.name)
	return vfs.FileInfo{
		Name:    base,
		Size:    int64(len(f.node.data)),
		Mode:    f.node.mode,
		ModTime: f.node.mtime,
		IsDir:   f.node.isDir,
	}, nil
}
