// Package errno defines the error kinds reported by the process and file
// system calls, and their numeric codes at the user boundary.
package errno

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// Errno is a kernel error kind. Its numeric value is the code handed back
// to user space out of band from the syscall result.
type Errno int

// Error codes, numbered as in the OS/161 errno table.
const (
	ENOSYS       Errno = 1
	ENOMEM       Errno = 3
	EFAULT       Errno = 6
	ENAMETOOLONG Errno = 7
	EINVAL       Errno = 8
	EACCES       Errno = 10
	ECHILD       Errno = 16
	ENOTDIR      Errno = 17
	EISDIR       Errno = 18
	ENOENT       Errno = 19
	EEXIST       Errno = 22
	EMFILE       Errno = 28
	ENFILE       Errno = 29
	EBADF        Errno = 30
	EIO          Errno = 32
)

var errnoText = map[Errno]string{
	ENOSYS:       "function not implemented",
	ENOMEM:       "out of memory",
	EFAULT:       "bad memory reference",
	ENAMETOOLONG: "string too long",
	EINVAL:       "invalid argument",
	EACCES:       "permission denied",
	ECHILD:       "no such child process",
	ENOTDIR:      "not a directory",
	EISDIR:       "is a directory",
	ENOENT:       "no such file or directory",
	EEXIST:       "file or object exists",
	EMFILE:       "too many open files",
	ENFILE:       "too many open files in system",
	EBADF:        "bad file number",
	EIO:          "input/output error",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "unknown error"
}

// Error kinds.
var (
	ErrNotSupported             error = ENOSYS
	ErrNoMemory                 error = ENOMEM
	ErrFault                    error = EFAULT
	ErrInvalid                  error = EINVAL
	ErrNoSuchChild              error = ECHILD
	ErrBadDescriptor            error = EBADF
	ErrDescriptorTableExhausted error = EMFILE
	ErrFileTableExhausted       error = ENFILE
)

// hostErrors maps errors raised by a host-backed file store.
var hostErrors = []struct {
	target error
	code   Errno
}{
	{fs.ErrNotExist, ENOENT},
	{fs.ErrExist, EEXIST},
	{fs.ErrPermission, EACCES},
	{os.ErrClosed, EBADF},
	{syscall.ENOTDIR, ENOTDIR},
	{syscall.EISDIR, EISDIR},
	{syscall.ENAMETOOLONG, ENAMETOOLONG},
	{syscall.EINVAL, EINVAL},
}

// Code returns the user-visible code for err. Zero means success. Errors
// that carry no known kind are reported as EIO.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return int(e)
	}
	for _, h := range hostErrors {
		if errors.Is(err, h.target) {
			return int(h.code)
		}
	}
	return int(EIO)
}
