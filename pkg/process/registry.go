package process

import (
	"fmt"
	"sort"
	"sync"

	"os161/pkg/kern/errno"
)

// DefaultPIDMax is the highest PID handed out when none is configured.
const DefaultPIDMax = 256

// Registry holds every process that has not been reaped, by PID.
type Registry struct {
	mu     sync.Mutex
	procs  map[int]*Process
	next   int
	pidMax int
}

// NewRegistry creates a registry that allocates PIDs from 1 to pidMax.
func NewRegistry(pidMax int) *Registry {
	if pidMax <= 0 {
		pidMax = DefaultPIDMax
	}
	return &Registry{
		procs:  make(map[int]*Process),
		next:   1,
		pidMax: pidMax,
	}
}

// add assigns p a free PID and registers it. PIDs are handed out in
// rotation, so a reaped PID is not reused until the others have been tried.
func (r *Registry) add(p *Process) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.pidMax; i++ {
		pid := r.next
		r.next++
		if r.next > r.pidMax {
			r.next = 1
		}
		if _, inUse := r.procs[pid]; inUse {
			continue
		}
		p.PID = pid
		r.procs[pid] = p
		liveProcesses.Set(float64(len(r.procs)))
		return pid, nil
	}
	return 0, fmt.Errorf("%w: all %d PIDs in use", errno.ErrNoMemory, r.pidMax)
}

// remove unregisters p, making its PID available again.
func (r *Registry) remove(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.procs[p.PID] == p {
		delete(r.procs, p.PID)
		liveProcesses.Set(float64(len(r.procs)))
	}
}

// Lookup returns the registered process with the given PID.
func (r *Registry) Lookup(pid int) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[pid]
	if !ok {
		return nil, errno.ErrNoSuchChild
	}
	return p, nil
}

// Len returns the number of registered processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Snapshot returns the registered processes ordered by PID.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PID < infos[j].PID })
	return infos
}
