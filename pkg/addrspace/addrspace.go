// Package addrspace models user address spaces: a set of regions whose
// contents are charged against a shared memory budget.
package addrspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"os161/pkg/kern/errno"
)

// ErrBadAddress is returned for an access outside every defined region.
var ErrBadAddress = errors.New("addrspace: address not mapped")

// Budget bounds the bytes of user memory in use across all address spaces.
type Budget struct {
	mu sync.Mutex
	// limit is the maximum bytes; zero means unlimited.
	limit int64
	used  int64
}

// NewBudget creates a budget of limit bytes. A limit of zero is unlimited.
func NewBudget(limit int64) *Budget {
	return &Budget{limit: limit}
}

// charge reserves n bytes or fails with errno.ErrNoMemory.
func (b *Budget) charge(n int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.used+n > b.limit {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", errno.ErrNoMemory, n, b.used, b.limit)
	}
	b.used += n
	return nil
}

func (b *Budget) refund(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used -= n
}

// Used returns the bytes currently charged.
func (b *Budget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

type region struct {
	base uint32
	data []byte
}

// AddressSpace is the user memory of one process.
type AddressSpace struct {
	mu      sync.RWMutex
	budget  *Budget
	regions []region
	charged int64
}

// New creates an empty address space charged to b. A nil budget is
// unlimited.
func New(b *Budget) *AddressSpace {
	if b == nil {
		b = NewBudget(0)
	}
	return &AddressSpace{budget: b}
}

// DefineRegion maps size zeroed bytes at base.
func (as *AddressSpace) DefineRegion(base uint32, size int) error {
	if size <= 0 {
		return errno.ErrInvalid
	}
	if err := as.budget.charge(int64(size)); err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions = append(as.regions, region{base: base, data: make([]byte, size)})
	sort.Slice(as.regions, func(i, j int) bool { return as.regions[i].base < as.regions[j].base })
	as.charged += int64(size)
	return nil
}

// Copy returns a deep copy of the address space, charged to the same
// budget. It fails with errno.ErrNoMemory if the budget cannot hold it.
func (as *AddressSpace) Copy() (*AddressSpace, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	if err := as.budget.charge(as.charged); err != nil {
		return nil, err
	}

	dup := &AddressSpace{
		budget:  as.budget,
		regions: make([]region, len(as.regions)),
		charged: as.charged,
	}
	for i, r := range as.regions {
		dup.regions[i] = region{base: r.base, data: append([]byte(nil), r.data...)}
	}
	return dup, nil
}

// Destroy releases the memory. The address space is empty afterwards.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.budget.refund(as.charged)
	as.regions = nil
	as.charged = 0
}

// find returns the region holding [addr, addr+n). Caller holds as.mu.
func (as *AddressSpace) find(addr uint32, n int) ([]byte, error) {
	for _, r := range as.regions {
		if addr >= r.base && uint64(addr)+uint64(n) <= uint64(r.base)+uint64(len(r.data)) {
			off := int(addr - r.base)
			return r.data[off : off+n], nil
		}
	}
	return nil, ErrBadAddress
}

// Load copies n bytes starting at addr out of the address space.
func (as *AddressSpace) Load(addr uint32, n int) ([]byte, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	mem, err := as.find(addr, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), mem...), nil
}

// Store copies data into the address space at addr.
func (as *AddressSpace) Store(addr uint32, data []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	mem, err := as.find(addr, len(data))
	if err != nil {
		return err
	}
	copy(mem, data)
	return nil
}

// Size returns the mapped bytes.
func (as *AddressSpace) Size() int64 {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.charged
}
