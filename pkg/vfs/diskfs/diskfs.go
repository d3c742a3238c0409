// Package diskfs provides a file store rooted at a host directory.
// It wraps the standard library's os functions to provide a VFS-compatible interface.
package diskfs

import (
	"os"
	"path/filepath"

	vfs "os161/pkg/vfs"
)

// FS represents a disk-based filesystem.
type FS struct {
	root string
}

// New creates a new disk-based filesystem rooted at the given directory.
func New(root string) *FS {
	return &FS{root: filepath.Clean(root)}
}

// OpenFile implements vfs.FileSystem.OpenFile.
//
// O_APPEND is not passed to the host: positional writes are refused by
// the os package on append-mode files, and append positioning is done by
// the caller.
func (fs *FS) OpenFile(path string, flags int, perm os.FileMode) (vfs.File, error) {
	if err := vfs.ValidatePath(path); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(fs.fullPath(path), flags&^vfs.O_APPEND, perm)
	if err != nil {
		return nil, err
	}
	return &diskFile{file: file}, nil
}

// fullPath converts a VFS path to an absolute filesystem path.
func (fs *FS) fullPath(path string) string {
	cleanPath := vfs.Clean(path)
	if cleanPath == "/" {
		return fs.root
	}
	return filepath.Join(fs.root, cleanPath[1:])
}

// diskFile wraps an os.File to implement vfs.File.
type diskFile struct {
	file *os.File
}

func (f *diskFile) ReadAt(b []byte, off int64) (int, error) {
	return f.file.ReadAt(b, off)
}

func (f *diskFile) WriteAt(b []byte, off int64) (int, error) {
	return f.file.WriteAt(b, off)
}

func (f *diskFile) Close() error {
	return f.file.Close()
}

func (f *diskFile) Stat() (vfs.FileInfo, error) {
	info, err := f.file.Stat()
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return vfs.FileInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}
