package process

import (
	"context"
	"errors"
	"log/slog"

	"os161/pkg/addrspace"
	"os161/pkg/fdtable"
	"os161/pkg/filetable"
	"os161/pkg/kern/errno"
	"os161/pkg/thread"
)

// ErrNoProcess is returned when the calling thread does not belong to a
// process.
var ErrNoProcess = errors.New("thread has no process")

// Config contains configuration for the lifecycle manager.
type Config struct {
	// OpenMax is the size of each process's descriptor table.
	OpenMax int
	// AutoReap discards the exit status as soon as a process exits. It is
	// set when nothing can wait for a process.
	AutoReap bool
}

// Manager creates, terminates and reaps processes.
type Manager struct {
	registry *Registry
	files    *filetable.Table
	sched    thread.Scheduler
	config   Config
	logger   *slog.Logger
}

// NewManager creates a lifecycle manager over the given tables.
func NewManager(registry *Registry, files *filetable.Table, sched thread.Scheduler, config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.OpenMax <= fdtable.Stderr {
		config.OpenMax = fdtable.Stderr + 1
	}
	return &Manager{
		registry: registry,
		files:    files,
		sched:    sched,
		config:   config,
		logger:   logger.With(slog.String("component", "proc")),
	}
}

// Registry returns the process registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Files returns the system-wide open file table.
func (m *Manager) Files() *filetable.Table {
	return m.files
}

// Boot creates a process with no parent and runs entry on its first
// thread. Returning from entry exits the process with status zero.
func (m *Manager) Boot(ctx context.Context, name string, as *addrspace.AddressSpace, entry func(t *thread.Thread)) (*Process, error) {
	p := newProcess(name, 0, m.config.OpenMax, as)
	if _, err := m.registry.add(p); err != nil {
		p.destroyAddressSpace()
		return nil, err
	}

	if _, err := m.sched.Fork(ctx, name, m.run(p, entry)); err != nil {
		m.registry.remove(p)
		p.destroyAddressSpace()
		return nil, err
	}

	m.logger.Info("process booted", slog.Int("pid", p.PID), slog.String("name", name))
	return p, nil
}

// run wraps entry so the thread joins p before it starts and exits p when
// entry returns.
func (m *Manager) run(p *Process, entry func(t *thread.Thread)) func(t *thread.Thread) {
	return func(t *thread.Thread) {
		p.AddThread(t)
		entry(t)
		m.Exit(t, 0)
	}
}

// Fork duplicates the process running t. The child gets a copy of the
// address space and a descriptor table naming the same open files, and
// resumes from a copy of tf with a zero result. Fork returns the child's
// PID; on failure nothing of the child remains.
func (m *Manager) Fork(t *thread.Thread, tf *thread.Trapframe) (int, error) {
	parent := Of(t)
	if parent == nil {
		return 0, ErrNoProcess
	}

	pid, err := m.fork(t, parent, tf)
	if err != nil {
		forksTotal.WithLabelValues("failed").Inc()
		m.logger.Warn("fork failed",
			slog.Int("pid", parent.PID),
			slog.String("error", err.Error()))
		return 0, err
	}

	forksTotal.WithLabelValues("ok").Inc()
	m.logger.Debug("process forked", slog.Int("pid", parent.PID), slog.Int("child", pid))
	return pid, nil
}

func (m *Manager) fork(t *thread.Thread, parent *Process, tf *thread.Trapframe) (int, error) {
	var as *addrspace.AddressSpace
	if pas := parent.AddressSpace(); pas != nil {
		var err error
		if as, err = pas.Copy(); err != nil {
			return 0, err
		}
	}

	files, err := parent.Files().Duplicate(m.files)
	if err != nil {
		if as != nil {
			as.Destroy()
		}
		return 0, err
	}

	child := newProcess(parent.Name, parent.PID, files.Size(), as)
	child.files = files

	if _, err := m.registry.add(child); err != nil {
		m.discard(child)
		return 0, err
	}

	ctf := tf.Clone()
	_, err = m.sched.Fork(t.Context(), child.Name, m.run(child, func(ct *thread.Thread) {
		thread.EnterForkedProcess(ct, ctf)
	}))
	if err != nil {
		m.registry.remove(child)
		m.discard(child)
		return 0, err
	}
	return child.PID, nil
}

// discard frees what a child that never ran was given.
func (m *Manager) discard(p *Process) {
	m.closeFiles(p)
	p.destroyAddressSpace()
}

func (m *Manager) closeFiles(p *Process) {
	for _, h := range p.Files().Drain() {
		if err := m.files.Release(h); err != nil {
			m.logger.Warn("close on exit failed",
				slog.Int("pid", p.PID),
				slog.String("error", err.Error()))
		}
	}
}

// Terminate records code as the exit status of the process running t,
// closes its descriptors, wakes any waiter and detaches t. Only the first
// call for a process records a status.
func (m *Manager) Terminate(t *thread.Thread, code int) {
	p := Of(t)
	if p == nil {
		return
	}

	m.closeFiles(p)
	if err := p.terminate(code); err == nil {
		exitsTotal.Inc()
		m.logger.Debug("process exited", slog.Int("pid", p.PID), slog.Int("status", code))
		if m.config.AutoReap {
			if _, err := p.reap(); err == nil {
				m.registry.remove(p)
			}
		}
	}
	p.RemoveThread(t)
}

// Exit terminates the process running t and ends the thread. It does not
// return unless t is nil.
func (m *Manager) Exit(t *thread.Thread, code int) {
	if t == nil {
		return
	}
	m.Terminate(t, code)
	t.Exit()
}

// Wait blocks until the process pid has exited and returns its status. A
// status can be collected once; afterwards the PID is unknown. A process
// cannot wait for itself.
func (m *Manager) Wait(caller *thread.Thread, pid int) (int, error) {
	if self := Of(caller); self != nil && self.PID == pid {
		return 0, errno.ErrNoSuchChild
	}

	p, err := m.registry.Lookup(pid)
	if err != nil {
		return 0, err
	}

	<-p.Exited()

	code, err := p.reap()
	if err != nil {
		return 0, err
	}
	m.registry.remove(p)
	reapsTotal.Inc()
	return code, nil
}
