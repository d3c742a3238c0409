package vfs

import (
	"fmt"
	"strings"

	"os161/pkg/kern/errno"
)

// Common path-related errors.
var (
	ErrEmptyPath   = fmt.Errorf("vfs: empty path: %w", errno.EINVAL)
	ErrInvalidPath = fmt.Errorf("vfs: invalid path: %w", errno.EINVAL)
	ErrPathTooLong = fmt.Errorf("vfs: path too long: %w", errno.ENAMETOOLONG)
)

// MaxPathLength is the maximum allowed path length (PATH_MAX).
const MaxPathLength = 1024

// Clean normalizes the path by removing unnecessary elements. The result is
// always absolute.
func Clean(p string) string {
	if p == "" {
		return "/"
	}

	p = strings.ReplaceAll(p, "\\", "/")

	var result []string
	for _, comp := range strings.Split(p, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			// Go up one level, but not past root
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, comp)
		}
	}

	return "/" + strings.Join(result, "/")
}

// Split splits the cleaned path into directory and base components.
func Split(p string) (dir, base string) {
	p = Clean(p)

	lastSlash := strings.LastIndex(p, "/")
	if lastSlash == 0 {
		return "/", p[1:]
	}

	return p[:lastSlash], p[lastSlash+1:]
}

// Components returns the non-empty elements of the cleaned path.
func Components(p string) []string {
	p = Clean(p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// ValidatePath checks if the path is valid for use in the VFS.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}

	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	return nil
}
