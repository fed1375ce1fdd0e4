package arena

import (
	"sync"
	"time"
)

// store is the state shared by every port split from one arena.
type store[T any] struct {
	// lock is the structural lock. It only becomes exclusive to grow, hibernate or boot.
	lock  *upgradableRWMutex
	arena *Arena[T]
	// frozen holds the compressed slots while the arena is hibernated.
	frozen *hibernated
}

// Port is one collection's view of a shared arena: its own lock, its own
// allocation-order chain and length, and an arbitrary meta value M describing the
// collection (for a tree, its root and bounds).
//
// Every slot allocated through a port belongs to that port until it is removed or
// detached. Using a handle with a port that does not own it is undefined behavior.
type Port[T, M any] struct {
	store *store[T]

	// mu is the collection lock; it guards everything below.
	mu          sync.RWMutex
	first, last Handle
	len         int
	meta        M
}

// Stats describes a port and the arena behind it.
type Stats struct {
	// Len is the number of slots owned by the port.
	Len int
	// Shared is the number of occupied slots across all ports of the arena.
	Shared int
	// Cap is the arena capacity.
	Cap int
	// Hibernated reports whether the arena is currently compressed.
	Hibernated bool
}

// NewPort wraps arena into its first port. An arena backs at most one family of
// ports; further collections come from Split.
func NewPort[M, T any](arena *Arena[T]) (*Port[T, M], error) {
	if arena.owned {
		return nil, ErrArenaOwned
	}

	arena.owned = true

	return &Port[T, M]{
		store: &store[T]{
			lock:  newUpgradableRWMutex(),
			arena: arena,
		},
	}, nil
}

// Split returns a new, empty port over the same arena.
func (port *Port[T, M]) Split() *Port[T, M] {
	return &Port[T, M]{store: port.store}
}

// SharesArena reports whether both ports allocate from the same arena.
func (port *Port[T, M]) SharesArena(other *Port[T, M]) bool {
	return port.store == other.store
}

// Len returns the number of slots owned by the port.
func (port *Port[T, M]) Len() int {
	port.mu.RLock()
	defer port.mu.RUnlock()

	return port.len
}

// Stats returns a consistent snapshot of the port counters.
func (port *Port[T, M]) Stats() Stats {
	port.store.lock.rLock()
	defer port.store.lock.rUnlock()

	port.mu.RLock()
	defer port.mu.RUnlock()

	stats := Stats{
		Len:        port.len,
		Shared:     port.store.arena.Len(),
		Hibernated: port.store.frozen != nil,
	}

	if stats.Hibernated {
		stats.Cap = port.store.frozen.slotCount - 1
	} else {
		stats.Cap = port.store.arena.Cap()
	}

	return stats
}

// Read acquires a shared structural hold and the collection lock for reading.
func (port *Port[T, M]) Read() *ReadGuard[T, M] {
	port.store.lock.rLock()
	if port.store.frozen != nil {
		port.store.lock.rUnlock()
		panic(hibernatedPanic)
	}

	port.mu.RLock()

	return &ReadGuard[T, M]{view: view[T, M]{port: port}}
}

// Write acquires a shared structural hold and the collection lock for writing.
// A shared structural hold suffices: mutating allocated slots never moves the store.
func (port *Port[T, M]) Write() *WriteGuard[T, M] {
	port.store.lock.rLock()
	if port.store.frozen != nil {
		port.store.lock.rUnlock()
		panic(hibernatedPanic)
	}

	port.mu.Lock()

	return &WriteGuard[T, M]{mutView: mutView[T, M]{view: view[T, M]{port: port}}}
}

// Allocate acquires an upgradeable structural hold and the collection lock for
// writing. Allocate guards of ports sharing an arena exclude each other.
func (port *Port[T, M]) Allocate() *AllocGuard[T, M] {
	port.store.lock.uLock()
	if port.store.frozen != nil {
		port.store.lock.uUnlock()
		panic(hibernatedPanic)
	}

	port.mu.Lock()

	return &AllocGuard[T, M]{mutView: mutView[T, M]{view: view[T, M]{port: port}}}
}

const hibernatedPanic = "arena: hibernated arenas cannot be used"

// grow briefly upgrades the caller's upgradeable hold to reserve room for one more slot.
func (s *store[T]) grow() {
	start := time.Now()

	s.lock.upgrade()

	waited := time.Since(start)
	event := s.arena.grow(1)

	s.lock.downgrade()

	event.Wait = waited
	s.arena.notifyGrow(event)
}

func (port *Port[T, M]) link(handle Handle) {
	arena := port.store.arena
	links := arena.chain(handle)
	*links = [2]Handle{port.last, Nil}

	if port.last != Nil {
		arena.chain(port.last)[next] = handle
	} else {
		port.first = handle
	}

	port.last = handle
	port.len++
}

func (port *Port[T, M]) unlink(handle Handle) {
	arena := port.store.arena
	links := arena.chain(handle)
	before, after := links[prev], links[next]

	if before != Nil {
		arena.chain(before)[next] = after
	} else {
		port.first = after
	}

	if after != Nil {
		arena.chain(after)[prev] = before
	} else {
		port.last = before
	}

	*links = [2]Handle{}
	port.len--
}
