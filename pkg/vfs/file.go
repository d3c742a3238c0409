package vfs

import (
	"fmt"

	"os161/pkg/kern/errno"
)

// ErrClosedFile is returned when operations are performed on a closed file.
var ErrClosedFile = fmt.Errorf("vfs: file is closed: %w", errno.EBADF)

// ErrPermissionDenied is returned when the open mode forbids the operation.
// The descriptor is unusable for it, so the code is EBADF.
var ErrPermissionDenied = fmt.Errorf("vfs: permission denied: %w", errno.EBADF)

// ErrInvalidOffset is returned for a negative file position.
var ErrInvalidOffset = fmt.Errorf("vfs: invalid offset: %w", errno.EINVAL)

// CanRead reports whether an open with flags permits reading.
func CanRead(flags int) bool {
	return flags&O_ACCMODE != O_WRONLY
}

// CanWrite reports whether an open with flags permits writing.
func CanWrite(flags int) bool {
	mode := flags & O_ACCMODE
	return mode == O_WRONLY || mode == O_RDWR
}
