// Package fdtable maps a process's file descriptors to open file table
// entries.
package fdtable

import (
	"sync"

	"os161/pkg/filetable"
	"os161/pkg/kern/errno"
)

// Standard descriptors. They reach the console unless a file has been
// installed over them with InstallAt.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// firstFree is the lowest descriptor handed out by Install.
const firstFree = Stderr + 1

// IsStandard reports whether fd is one of the three standard descriptors.
func IsStandard(fd int) bool {
	return fd >= Stdin && fd <= Stderr
}

// Table is a fixed-size descriptor table. Each occupied slot holds one
// reference on its open file table entry. Once drained, a table accepts no
// new entries.
type Table struct {
	mu     sync.Mutex
	slots  []filetable.Handle
	closed bool
}

// New creates an empty table with size descriptors.
func New(size int) *Table {
	return &Table{slots: make([]filetable.Handle, size)}
}

// Install stores h in the lowest free descriptor above the standard ones.
// On error the caller still owns h and must release it.
func (t *Table) Install(h filetable.Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return -1, errno.ErrBadDescriptor
	}
	for fd := firstFree; fd < len(t.slots); fd++ {
		if t.slots[fd].IsZero() {
			t.slots[fd] = h
			return fd, nil
		}
	}
	return -1, errno.ErrDescriptorTableExhausted
}

// InstallAt stores h at fd and returns what fd held before, which the
// caller must release if it is not zero.
func (t *Table) InstallAt(fd int, h filetable.Handle) (filetable.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || fd < 0 || fd >= len(t.slots) {
		return filetable.Handle{}, errno.ErrBadDescriptor
	}
	prev := t.slots[fd]
	t.slots[fd] = h
	return prev, nil
}

// Lookup returns the entry behind fd.
func (t *Table) Lookup(fd int) (filetable.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd].IsZero() {
		return filetable.Handle{}, errno.ErrBadDescriptor
	}
	return t.slots[fd], nil
}

// Remove clears fd and hands its reference to the caller.
func (t *Table) Remove(fd int) (filetable.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd].IsZero() {
		return filetable.Handle{}, errno.ErrBadDescriptor
	}
	h := t.slots[fd]
	t.slots[fd] = filetable.Handle{}
	return h, nil
}

// Duplicate returns a table naming the same entries, taking one reference
// per occupied slot in files.
func (t *Table) Duplicate(files *filetable.Table) (*Table, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errno.ErrBadDescriptor
	}
	dup := New(len(t.slots))
	for fd, h := range t.slots {
		if h.IsZero() {
			continue
		}
		if err := files.Retain(h); err != nil {
			for _, got := range dup.slots[:fd] {
				if !got.IsZero() {
					files.Release(got)
				}
			}
			return nil, err
		}
		dup.slots[fd] = h
	}
	return dup, nil
}

// Drain empties and closes the table and returns the references it held.
func (t *Table) Drain() []filetable.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	var held []filetable.Handle
	for fd, h := range t.slots {
		if !h.IsZero() {
			held = append(held, h)
			t.slots[fd] = filetable.Handle{}
		}
	}
	return held
}

// Len returns the number of occupied descriptors.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, h := range t.slots {
		if !h.IsZero() {
			n++
		}
	}
	return n
}

// Size returns the number of descriptors.
func (t *Table) Size() int {
	return len(t.slots)
}
