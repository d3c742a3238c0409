// Package filetable is the system-wide table of open files.
//
// Each entry owns one file-store handle and the file offset. Entries are
// reference counted: every descriptor naming an entry holds one reference,
// and the handle is closed when the last reference is released. Because the
// offset lives in the entry, descriptors that share an entry (after fork or
// dup2) share the offset.
package filetable

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"os161/pkg/kern/errno"
	"os161/pkg/vfs"
)

// Handle names an entry. The zero Handle names nothing.
type Handle struct {
	slot int
	gen  uint64
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

type entry struct {
	// io serializes transfers on the entry and guards offset.
	io     sync.Mutex
	offset int64

	file  vfs.File
	flags int
	gen   uint64
	// refs is guarded by Table.mu.
	refs int
}

// Table is a fixed-capacity open file table.
type Table struct {
	mu     sync.Mutex
	slots  []*entry
	inUse  int
	gen    uint64
	fs     vfs.FileSystem
	logger *slog.Logger
}

// New creates a table of capacity entries over fs.
func New(fs vfs.FileSystem, capacity int, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		slots:  make([]*entry, capacity),
		fs:     fs,
		logger: logger.With(slog.String("component", "filetable")),
	}
}

// Acquire opens path and installs it in a free slot with offset zero and
// one reference. Every call creates a distinct entry, even for the same
// path. Errors from the file store are returned unchanged.
func (t *Table) Acquire(path string, flags int, perm os.FileMode) (Handle, error) {
	file, err := t.fs.OpenFile(path, flags, perm)
	if err != nil {
		return Handle{}, err
	}

	t.mu.Lock()
	for i, e := range t.slots {
		if e != nil {
			continue
		}
		t.gen++
		t.slots[i] = &entry{file: file, flags: flags, gen: t.gen, refs: 1}
		t.inUse++
		h := Handle{slot: i, gen: t.gen}
		t.mu.Unlock()

		entriesInUse.Inc()
		t.logger.Debug("file opened", slog.String("path", path), slog.Int("slot", i))
		return h, nil
	}
	t.mu.Unlock()

	exhaustedTotal.Inc()
	t.logger.Warn("open file table full", slog.String("path", path), slog.Int("capacity", len(t.slots)))
	if cerr := file.Close(); cerr != nil {
		t.logger.Error("close after failed install", slog.String("path", path), slog.Any("error", cerr))
	}
	return Handle{}, errno.ErrFileTableExhausted
}

// lookup returns the live entry for h. Caller holds t.mu.
func (t *Table) lookup(h Handle) (*entry, error) {
	if h.IsZero() || h.slot < 0 || h.slot >= len(t.slots) {
		return nil, errno.ErrBadDescriptor
	}
	e := t.slots[h.slot]
	if e == nil || e.gen != h.gen {
		return nil, errno.ErrBadDescriptor
	}
	return e, nil
}

// Retain adds a reference to the entry.
func (t *Table) Retain(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookup(h)
	if err != nil {
		return err
	}
	e.refs++
	return nil
}

// Release drops a reference. Dropping the last one frees the slot and
// closes the file-store handle; the close error, if any, is returned.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	e, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	e.refs--
	if e.refs > 0 {
		t.mu.Unlock()
		return nil
	}
	t.slots[h.slot] = nil
	t.inUse--
	t.mu.Unlock()

	entriesInUse.Dec()
	t.logger.Debug("file closed", slog.Int("slot", h.slot))
	return e.file.Close()
}

// pin takes a temporary reference so the entry outlives a transfer that
// races with the last Release.
func (t *Table) pin(h Handle) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	e.refs++
	return e, nil
}

func (t *Table) unpin(h Handle) {
	if err := t.Release(h); err != nil {
		t.logger.Error("close after transfer", slog.Int("slot", h.slot), slog.Any("error", err))
	}
}

// Read reads into buf at the entry's offset and advances the offset by the
// bytes read. Reaching end of file is a short count, not an error.
func (t *Table) Read(h Handle, buf []byte) (int, error) {
	e, err := t.pin(h)
	if err != nil {
		return 0, err
	}
	defer t.unpin(h)

	e.io.Lock()
	defer e.io.Unlock()

	n, err := e.file.ReadAt(buf, e.offset)
	e.offset += int64(n)
	bytesTotal.WithLabelValues("read").Add(float64(n))

	if errors.Is(err, io.EOF) || (err != nil && n > 0) {
		err = nil
	}
	return n, err
}

// Write writes buf at the entry's offset and advances the offset by the
// bytes written. Entries opened with O_APPEND write at the end of file.
func (t *Table) Write(h Handle, buf []byte) (int, error) {
	e, err := t.pin(h)
	if err != nil {
		return 0, err
	}
	defer t.unpin(h)

	e.io.Lock()
	defer e.io.Unlock()

	if e.flags&vfs.O_APPEND != 0 {
		info, err := e.file.Stat()
		if err != nil {
			return 0, err
		}
		e.offset = info.Size
	}

	n, err := e.file.WriteAt(buf, e.offset)
	e.offset += int64(n)
	bytesTotal.WithLabelValues("write").Add(float64(n))

	if err != nil && n > 0 {
		err = nil
	}
	return n, err
}

// Seek moves the entry's offset and returns the new value.
func (t *Table) Seek(h Handle, offset int64, whence int) (int64, error) {
	e, err := t.pin(h)
	if err != nil {
		return 0, err
	}
	defer t.unpin(h)

	e.io.Lock()
	defer e.io.Unlock()

	var base int64
	switch whence {
	case vfs.SEEK_SET:
	case vfs.SEEK_CUR:
		base = e.offset
	case vfs.SEEK_END:
		info, err := e.file.Stat()
		if err != nil {
			return 0, err
		}
		base = info.Size
	default:
		return 0, fmt.Errorf("%w: whence %d", errno.ErrInvalid, whence)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", errno.ErrInvalid, pos)
	}
	e.offset = pos
	return pos, nil
}

// Offset returns the entry's current offset.
func (t *Table) Offset(h Handle) (int64, error) {
	e, err := t.pin(h)
	if err != nil {
		return 0, err
	}
	defer t.unpin(h)

	e.io.Lock()
	defer e.io.Unlock()
	return e.offset, nil
}

// Refs returns the entry's reference count.
func (t *Table) Refs(h Handle) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookup(h)
	if err != nil {
		return 0, err
	}
	return e.refs, nil
}

// InUse returns the number of occupied slots.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inUse
}

// Capacity returns the number of slots.
func (t *Table) Capacity() int {
	return len(t.slots)
}
