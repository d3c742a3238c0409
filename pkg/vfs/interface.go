package vfs

import (
	"io"
	"os"
	"time"
)

// FileSystem opens files by path.
type FileSystem interface {
	// OpenFile opens a file with the specified flags and permissions.
	// flags can be a combination of O_RDONLY, O_WRONLY, O_RDWR,
	// O_CREATE, O_EXCL, O_TRUNC, O_APPEND.
	OpenFile(path string, flags int, perm os.FileMode) (File, error)
}

// File is an open file. Reads and writes are positional: the file keeps no
// offset of its own.
type File interface {
	// ReadAt reads up to len(b) bytes starting at off. At end of file it
	// returns the bytes read so far together with io.EOF.
	io.ReaderAt

	// WriteAt writes b starting at off, growing the file as needed.
	io.WriterAt

	// Close releases the file. Further calls return ErrClosedFile.
	Close() error

	// Stat describes the file at the time of the call.
	Stat() (FileInfo, error)
}

// FileInfo describes a file.
type FileInfo struct {
	Name    string      // Base name of the file
	Size    int64       // Length in bytes
	Mode    os.FileMode // File mode bits
	ModTime time.Time   // Modification time
	IsDir   bool        // True if path is a directory
}

// Flags for OpenFile operations, matching os package constants.
const (
	O_RDONLY  = os.O_RDONLY // Open file read-only.
	O_WRONLY  = os.O_WRONLY // Open file write-only.
	O_RDWR    = os.O_RDWR   // Open file read-write.
	O_CREATE  = os.O_CREATE // Create file if it does not exist.
	O_EXCL    = os.O_EXCL   // Used with O_CREATE: file must not exist.
	O_TRUNC   = os.O_TRUNC  // Truncate file to zero length if it exists.
	O_APPEND  = os.O_APPEND // Append to the file on each write.
	O_ACCMODE = O_RDONLY | O_WRONLY | O_RDWR
)

// SeekWhence constants for seek requests made above this layer.
const (
	SEEK_SET = io.SeekStart   // Relative to start of file.
	SEEK_CUR = io.SeekCurrent // Relative to current position.
	SEEK_END = io.SeekEnd     // Relative to end of file.
)
