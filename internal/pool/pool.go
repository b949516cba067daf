// Package pool implements the fixed-block arena allocator that backs every
// per-transfer structure in the engine (rx states, buffer blocks, tx queue
// items). No general allocator is ever called after construction: the
// arena's capacity is fixed at creation time and allocation/free are O(1)
// operations over a singly-linked free list.
package pool

import "errors"

// ErrExhausted is returned by Allocate when the arena's free list is empty.
var ErrExhausted = errors.New("pool: arena exhausted")

// Index is a stable 1-based handle into a Pool's backing slice. The zero
// value, None, never refers to a live slot. Using an index rather than a
// pointer keeps persisted structures (rx state / tx queue chains) the same
// size regardless of host word size, and lets the type system express
// nullability without a reserved sentinel pointer.
type Index uint16

// None is the null handle: "no next block", "no buffer chain", etc.
const None Index = 0

// Valid reports whether idx refers to a live slot.
func (idx Index) Valid() bool { return idx != None }

// MaxCapacity is the largest arena size representable by Index (spec.md
// §4.1: capacity is capped at 65535 blocks).
const MaxCapacity = 0xFFFF

// Stats mirrors the C API's CanardPoolAllocatorStatistics: capacity,
// current usage and historical peak, all in blocks.
type Stats struct {
	CapacityBlocks    uint16
	CurrentUsedBlocks uint16
	PeakUsedBlocks    uint16
}

// Locker is the optional mutex hook from spec.md §4.1 ("a hookable mutex
// around allocate/free is provided for concurrent callers"). A nil Locker
// makes the pool usable only from a single goroutine, matching the engine's
// default single-threaded contract (spec.md §5).
type Locker interface {
	Lock()
	Unlock()
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

type slot[T any] struct {
	used  bool
	value T
	next  Index // free-list link when !used
}

// Pool is a fixed-capacity typed arena: one category of block (rx state,
// buffer block, or tx queue item in the engine) gets its own Pool, all
// sharing the same Index/Stats vocabulary so the engine can report combined
// pool statistics. This is the Go-safe reading of the C implementation's
// "any block may be reinterpreted as any of three structure types" trick
// (spec.md §9, DESIGN NOTES): rather than reinterpreting raw bytes, each
// category gets its own slab, and capacity is apportioned between slabs by
// the caller up front.
type Pool[T any] struct {
	slots    []slot[T]
	freeHead Index
	stats    Stats
	lock     Locker
}

// New creates a Pool with room for capacity blocks of T. capacity is capped
// at MaxCapacity, matching the arena-wide cap in spec.md §4.1.
func New[T any](capacity int) *Pool[T] {
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool[T]{
		slots: make([]slot[T], capacity),
		lock:  noopLocker{},
	}
	for i := range p.slots {
		// Index i+1 refers to slots[i]; free list threads index i+1 -> i -> ... -> 1 -> None.
		p.slots[i].next = Index(i)
	}
	if capacity > 0 {
		p.freeHead = Index(capacity)
	}
	p.stats.CapacityBlocks = uint16(capacity)
	return p
}

// SetLocker installs the mutex hook. Must be called before the pool is
// shared across goroutines.
func (p *Pool[T]) SetLocker(l Locker) {
	if l == nil {
		l = noopLocker{}
	}
	p.lock = l
}

// Allocate takes the head of the free list, zeroes it, and returns its
// index. Returns ErrExhausted if the arena is full.
func (p *Pool[T]) Allocate() (Index, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.freeHead == None {
		return None, ErrExhausted
	}
	idx := p.freeHead
	s := &p.slots[idx-1]
	p.freeHead = s.next
	var zero T
	s.value = zero
	s.used = true
	p.stats.CurrentUsedBlocks++
	if p.stats.CurrentUsedBlocks > p.stats.PeakUsedBlocks {
		p.stats.PeakUsedBlocks = p.stats.CurrentUsedBlocks
	}
	return idx, nil
}

// Free pushes idx back onto the head of the free list. Freeing None or an
// already-free index is a no-op.
func (p *Pool[T]) Free(idx Index) {
	if !idx.Valid() {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()

	s := &p.slots[idx-1]
	if !s.used {
		return
	}
	s.used = false
	s.next = p.freeHead
	p.freeHead = idx
	if p.stats.CurrentUsedBlocks > 0 {
		p.stats.CurrentUsedBlocks--
	}
}

// Get returns a pointer to the live value at idx, or nil if idx is None or
// not currently allocated. The pointer is invalidated by the next Free of
// the same index.
func (p *Pool[T]) Get(idx Index) *T {
	if !idx.Valid() || int(idx) > len(p.slots) {
		return nil
	}
	s := &p.slots[idx-1]
	if !s.used {
		return nil
	}
	return &s.value
}

// Stats returns a snapshot of the pool's allocation counters.
func (p *Pool[T]) Stats() Stats {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stats
}

// Available reports the number of blocks that can still be allocated.
func (p *Pool[T]) Available() int {
	s := p.Stats()
	return int(s.CapacityBlocks) - int(s.CurrentUsedBlocks)
}
