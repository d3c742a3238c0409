package process

import (
	"sync"
	"time"

	"os161/pkg/addrspace"
	"os161/pkg/fdtable"
	"os161/pkg/thread"
)

// ProcessState represents the state of a process in the system.
type ProcessState string

const (
	// StateRunning indicates the process has not yet exited.
	StateRunning ProcessState = "running"
	// StateZombie indicates the process has exited and its status has not
	// been collected.
	StateZombie ProcessState = "zombie"
	// StateReaped indicates the status has been collected. The process is
	// gone from the registry and its identity may be reused.
	StateReaped ProcessState = "reaped"
)

// Process is a process control block.
type Process struct {
	// PID is the unique process identifier.
	PID int
	// ParentPID is the PID of the process that forked this one, or zero.
	ParentPID int
	// Name is the process name, inherited across fork.
	Name string
	// CreatedAt is when the process was created.
	CreatedAt time.Time

	// mu protects the fields below.
	mu sync.Mutex
	// state is the lifecycle state.
	state ProcessState
	// exitCode is valid once state is StateZombie.
	exitCode int
	// finishedAt is when the process exited.
	finishedAt time.Time
	// exited is closed exactly once, when the process exits.
	exited chan struct{}
	// threads holds the threads running in the process.
	threads map[*thread.Thread]struct{}
	// addrspace is the user memory of the process.
	addrspace *addrspace.AddressSpace

	files *fdtable.Table
}

// newProcess creates a running process with an empty descriptor table of
// fdSize slots.
func newProcess(name string, parentPID int, fdSize int, as *addrspace.AddressSpace) *Process {
	return &Process{
		ParentPID: parentPID,
		Name:      name,
		CreatedAt: time.Now(),
		state:     StateRunning,
		exited:    make(chan struct{}),
		threads:   make(map[*thread.Thread]struct{}),
		addrspace: as,
		files:     fdtable.New(fdSize),
	}
}

// Of returns the process that t runs in, or nil.
func Of(t *thread.Thread) *Process {
	if t == nil {
		return nil
	}
	p, _ := t.Owner().(*Process)
	return p
}

// Files returns the descriptor table.
func (p *Process) Files() *fdtable.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files
}

// AddressSpace returns the process's user memory.
func (p *Process) AddressSpace() *addrspace.AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addrspace
}

// AddThread attaches t to the process.
func (p *Process) AddThread(t *thread.Thread) {
	p.mu.Lock()
	p.threads[t] = struct{}{}
	p.mu.Unlock()
	t.SetOwner(p)
}

// RemoveThread detaches t from the process. The address space is destroyed
// when the last thread leaves.
func (p *Process) RemoveThread(t *thread.Thread) {
	p.mu.Lock()
	if _, ok := p.threads[t]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.threads, t)
	last := len(p.threads) == 0
	p.mu.Unlock()

	t.SetOwner(nil)
	if last {
		p.destroyAddressSpace()
	}
}

// ThreadCount returns the number of attached threads.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

func (p *Process) destroyAddressSpace() {
	p.mu.Lock()
	as := p.addrspace
	p.addrspace = nil
	p.mu.Unlock()

	if as != nil {
		as.Destroy()
	}
}

// Exited is closed when the process exits.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitCode returns the recorded status and whether it is valid yet.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.state != StateRunning
}

// Info is a point-in-time view of a process.
type Info struct {
	PID       int
	ParentPID int
	Name      string
	State     ProcessState
	Threads   int
	OpenFiles int
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		PID:       p.PID,
		ParentPID: p.ParentPID,
		Name:      p.Name,
		State:     p.state,
		Threads:   len(p.threads),
		OpenFiles: p.files.Len(),
	}
}
