// Package syscalls is the system call boundary: it checks caller buffers
// and capability switches, then hands each call to the process manager,
// the descriptor tables or the console.
package syscalls

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"os161/pkg/console"
	"os161/pkg/fdtable"
	"os161/pkg/filetable"
	"os161/pkg/kern/errno"
	"os161/pkg/process"
	"os161/pkg/thread"
)

// Options switches groups of system calls on. A disabled call fails with
// errno.ErrNotSupported.
type Options struct {
	// File enables open, close, lseek and dup2, and read and write on
	// descriptors other than the console.
	File bool
	// Fork enables fork.
	Fork bool
	// Waitpid enables waitpid, getpid and getppid.
	Waitpid bool
}

// AllOptions enables every system call.
var AllOptions = Options{File: true, Fork: true, Waitpid: true}

// Dispatcher carries out system calls for the threads of a kernel.
type Dispatcher struct {
	procs   *process.Manager
	files   *filetable.Table
	console console.Console
	opts    Options
	bootID  string
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a dispatcher. bootID is attached to every syscall span.
func New(procs *process.Manager, cons console.Console, opts Options, bootID string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		procs:   procs,
		files:   procs.Files(),
		console: cons,
		opts:    opts,
		bootID:  bootID,
		tracer:  otel.Tracer("os161/syscalls"),
		logger:  logger.With(slog.String("component", "syscalls")),
	}
}

func caller(t *thread.Thread) (*process.Process, error) {
	p := process.Of(t)
	if p == nil {
		return nil, process.ErrNoProcess
	}
	return p, nil
}

// Open opens path and returns a new descriptor, 3 or above.
func (d *Dispatcher) Open(t *thread.Thread, path string, flags int, perm os.FileMode) (fd int, err error) {
	span := d.start(t, "open", attribute.String("path", path))
	defer func() { finish(span, err) }()

	if !d.opts.File {
		return -1, errno.ErrNotSupported
	}
	if path == "" {
		return -1, errno.ErrFault
	}
	p, err := caller(t)
	if err != nil {
		return -1, err
	}

	h, err := d.files.Acquire(path, flags, perm)
	if err != nil {
		return -1, err
	}
	fd, err = p.Files().Install(h)
	if err != nil {
		d.files.Release(h)
		return -1, err
	}

	d.logger.Debug("open", slog.Int("pid", p.PID), slog.String("path", path), slog.Int("fd", fd))
	return fd, nil
}

// Close releases fd.
func (d *Dispatcher) Close(t *thread.Thread, fd int) (err error) {
	span := d.start(t, "close", attribute.Int("fd", fd))
	defer func() { finish(span, err) }()

	if !d.opts.File {
		return errno.ErrNotSupported
	}
	p, err := caller(t)
	if err != nil {
		return err
	}

	h, err := p.Files().Remove(fd)
	if err != nil {
		return err
	}
	return d.files.Release(h)
}

// route resolves fd to an open file. ok is false for a standard descriptor
// with no file installed over it, which goes to the console.
func (d *Dispatcher) route(p *process.Process, fd int) (h filetable.Handle, ok bool, err error) {
	h, err = p.Files().Lookup(fd)
	if err == nil {
		return h, true, nil
	}
	if fdtable.IsStandard(fd) {
		return filetable.Handle{}, false, nil
	}
	if !d.opts.File {
		return filetable.Handle{}, false, errno.ErrNotSupported
	}
	return filetable.Handle{}, false, err
}

func checkBuffer(buf []byte, n int) error {
	if buf == nil || n < 0 || n > len(buf) {
		return errno.ErrFault
	}
	return nil
}

// Read reads up to n bytes from fd into buf. A short count is not an
// error.
func (d *Dispatcher) Read(t *thread.Thread, fd int, buf []byte, n int) (got int, err error) {
	span := d.start(t, "read", attribute.Int("fd", fd), attribute.Int("len", n))
	defer func() { finish(span, err) }()

	if err := checkBuffer(buf, n); err != nil {
		return 0, err
	}
	p, err := caller(t)
	if err != nil {
		return 0, err
	}

	h, ok, err := d.route(p, fd)
	if err != nil {
		return 0, err
	}
	if !ok {
		return d.consoleRead(buf[:n]), nil
	}
	return d.files.Read(h, buf[:n])
}

// Write writes n bytes of buf to fd.
func (d *Dispatcher) Write(t *thread.Thread, fd int, buf []byte, n int) (put int, err error) {
	span := d.start(t, "write", attribute.Int("fd", fd), attribute.Int("len", n))
	defer func() { finish(span, err) }()

	if err := checkBuffer(buf, n); err != nil {
		return 0, err
	}
	p, err := caller(t)
	if err != nil {
		return 0, err
	}

	h, ok, err := d.route(p, fd)
	if err != nil {
		return 0, err
	}
	if !ok {
		for _, b := range buf[:n] {
			d.console.PutByte(b)
		}
		return n, nil
	}
	return d.files.Write(h, buf[:n])
}

// consoleRead reads byte by byte, stopping early when the console has no
// more input.
func (d *Dispatcher) consoleRead(buf []byte) int {
	for i := range buf {
		b, ok := d.console.GetByte()
		if !ok {
			return i
		}
		buf[i] = b
	}
	return len(buf)
}

// Lseek moves the offset shared by every descriptor naming fd's file.
func (d *Dispatcher) Lseek(t *thread.Thread, fd int, offset int64, whence int) (pos int64, err error) {
	span := d.start(t, "lseek", attribute.Int("fd", fd), attribute.Int64("offset", offset))
	defer func() { finish(span, err) }()

	if !d.opts.File {
		return 0, errno.ErrNotSupported
	}
	p, err := caller(t)
	if err != nil {
		return 0, err
	}

	h, err := p.Files().Lookup(fd)
	if err != nil {
		return 0, err
	}
	return d.files.Seek(h, offset, whence)
}

// Dup2 makes newfd name the same open file as oldfd, closing what newfd
// held.
func (d *Dispatcher) Dup2(t *thread.Thread, oldfd, newfd int) (fd int, err error) {
	span := d.start(t, "dup2", attribute.Int("fd", oldfd), attribute.Int("newfd", newfd))
	defer func() { finish(span, err) }()

	if !d.opts.File {
		return -1, errno.ErrNotSupported
	}
	p, err := caller(t)
	if err != nil {
		return -1, err
	}

	files := p.Files()
	h, err := files.Lookup(oldfd)
	if err != nil {
		return -1, err
	}
	if newfd < 0 || newfd >= files.Size() {
		return -1, errno.ErrBadDescriptor
	}
	if oldfd == newfd {
		return newfd, nil
	}

	if err := d.files.Retain(h); err != nil {
		return -1, err
	}
	prev, err := files.InstallAt(newfd, h)
	if err != nil {
		d.files.Release(h)
		return -1, err
	}
	if !prev.IsZero() {
		if err := d.files.Release(prev); err != nil {
			d.logger.Warn("dup2 close failed", slog.Int("pid", p.PID), slog.Int("fd", newfd), slog.String("error", err.Error()))
		}
	}
	return newfd, nil
}

// Fork duplicates the calling process. The parent gets the child's PID;
// the child resumes from a copy of tf with a zero result.
func (d *Dispatcher) Fork(t *thread.Thread, tf *thread.Trapframe) (pid int, err error) {
	span := d.start(t, "fork")
	defer func() { finish(span, err) }()

	if !d.opts.Fork {
		return 0, errno.ErrNotSupported
	}
	pid, err = d.procs.Fork(t, tf)
	if err == nil {
		span.SetAttributes(attribute.Int("child", pid))
	}
	return pid, err
}

// Exit ends the calling process with code as its status. It does not
// return.
func (d *Dispatcher) Exit(t *thread.Thread, code int) {
	span := d.start(t, "_exit", attribute.Int("status", code))
	span.End()
	d.procs.Exit(t, code)
}

// Waitpid waits for pid to exit and stores its status in status, if not
// nil. flags is ignored.
func (d *Dispatcher) Waitpid(t *thread.Thread, pid int, status *int, flags int) (got int, err error) {
	span := d.start(t, "waitpid", attribute.Int("target", pid))
	defer func() { finish(span, err) }()

	if !d.opts.Waitpid {
		return 0, errno.ErrNotSupported
	}
	code, err := d.procs.Wait(t, pid)
	if err != nil {
		return 0, err
	}
	if status != nil {
		*status = code
	}
	return pid, nil
}

// Getpid returns the caller's PID.
func (d *Dispatcher) Getpid(t *thread.Thread) (int, error) {
	if !d.opts.Waitpid {
		return 0, errno.ErrNotSupported
	}
	p, err := caller(t)
	if err != nil {
		return 0, err
	}
	return p.PID, nil
}

// Getppid returns the PID of the caller's parent, or zero.
func (d *Dispatcher) Getppid(t *thread.Thread) (int, error) {
	if !d.opts.Waitpid {
		return 0, errno.ErrNotSupported
	}
	p, err := caller(t)
	if err != nil {
		return 0, err
	}
	return p.ParentPID, nil
}
