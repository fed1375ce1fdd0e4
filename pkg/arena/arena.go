// Package arena provides a slab allocator addressed by stable uint32 handles, and ports:
// lockable views letting several collections share one slab without contending on each
// other's bookkeeping.
package arena

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/Sumatoshi-tech/rbforest/pkg/safeconv"
)

// maxSlots bounds the store so that every slot index fits a Handle.
const maxSlots = math.MaxUint32

type slot[T any] struct {
	value T
	// next is the free-list successor while the slot is free.
	next Handle
	// chain links the slot into the allocation order of the owning port.
	chain    [2]Handle
	occupied bool
}

// Arena is a slab of T values. Freed slots are threaded into a free list stored in the
// slots themselves, so Insert and Remove are O(1). The store only grows.
//
// An Arena on its own is not safe for concurrent use; wrap it with NewPort.
type Arena[T any] struct {
	logger *slog.Logger
	onGrow func(GrowEvent)

	// slots always has its full length; slots[used:] were never handed out.
	// Slot #0 is reserved.
	slots []slot[T]

	// used is the high-water mark. It is read by lookups running under a shared
	// structural hold while an allocator bumps it, hence atomic.
	used  atomic.Uint32
	count atomic.Int64
	free  Handle

	growNum, growDen int
	// hibernationThreshold is the minimum Len at which Hibernate compresses.
	hibernationThreshold int
	owned                bool
}

// New creates an empty arena.
func New[T any](opts ...Option) *Arena[T] {
	o := buildOptions(opts)

	arena := &Arena[T]{
		logger:  o.logger,
		onGrow:  o.onGrow,
		slots:   make([]slot[T], o.capacity+1),
		growNum: o.growNum,
		growDen: o.growDen,

		hibernationThreshold: o.threshold,
	}
	arena.used.Store(1)

	return arena
}

// Len returns the number of occupied slots.
func (arena *Arena[T]) Len() int {
	return int(arena.count.Load())
}

// Cap returns the number of usable slots the store can hold without growing.
func (arena *Arena[T]) Cap() int {
	return len(arena.slots) - 1
}

// Full reports whether the next insert needs to grow the store.
func (arena *Arena[T]) Full() bool {
	return arena.free == Nil && int(arena.used.Load()) == len(arena.slots)
}

// Insert stores value and returns its handle, growing the store when needed.
func (arena *Arena[T]) Insert(value T) Handle {
	handle, ok := arena.InsertWithinCapacity(value)
	if ok {
		return handle
	}

	event := arena.grow(1)
	arena.notifyGrow(event)

	handle, ok = arena.InsertWithinCapacity(value)
	doAssert(ok)

	return handle
}

// InsertWithinCapacity stores value without growing the store. It reports false when
// the store is full.
func (arena *Arena[T]) InsertWithinCapacity(value T) (Handle, bool) {
	if arena.free != Nil {
		handle := arena.free
		entry := &arena.slots[handle]
		doAssert(!entry.occupied)
		arena.free = entry.next
		*entry = slot[T]{value: value, occupied: true}
		arena.count.Add(1)

		return handle, true
	}

	used := arena.used.Load()
	if int(used) == len(arena.slots) {
		return Nil, false
	}

	arena.slots[used] = slot[T]{value: value, occupied: true}
	arena.used.Store(used + 1)
	arena.count.Add(1)

	return Handle(used), true
}

// Remove frees the slot and returns the value it held. The handle must not be used again.
func (arena *Arena[T]) Remove(handle Handle) (T, bool) {
	if !arena.occupied(handle) {
		var zero T

		return zero, false
	}

	entry := &arena.slots[handle]
	value := entry.value
	*entry = slot[T]{next: arena.free}
	arena.free = handle
	arena.count.Add(-1)

	return value, true
}

// Get returns a copy of the value stored under handle.
func (arena *Arena[T]) Get(handle Handle) (T, bool) {
	if !arena.occupied(handle) {
		var zero T

		return zero, false
	}

	return arena.slots[handle].value, true
}

// GetMut returns a pointer to the value stored under handle. The pointer is
// invalidated by the next grow step.
func (arena *Arena[T]) GetMut(handle Handle) (*T, bool) {
	if !arena.occupied(handle) {
		return nil, false
	}

	return &arena.slots[handle].value, true
}

// Contains reports whether handle points at an occupied slot.
func (arena *Arena[T]) Contains(handle Handle) bool {
	return arena.occupied(handle)
}

// Ref indexes the store. An invalid handle means the caller's bookkeeping is corrupt,
// so Ref panics instead of returning an error.
func (arena *Arena[T]) Ref(handle Handle) *T {
	if !arena.occupied(handle) {
		panic(fmt.Sprintf("arena: %d is not a valid handle", handle))
	}

	return &arena.slots[handle].value
}

// GetManyMut returns one pointer per handle. It fails when a handle is repeated or
// outside the store (ErrIndexAliasing) or when a slot is free (ErrNotOccupied).
func (arena *Arena[T]) GetManyMut(handles ...Handle) ([]*T, error) {
	used := int(arena.used.Load())

	for idx, handle := range handles {
		if handle == Nil || int(handle) >= used {
			return nil, fmt.Errorf("%w: %s is out of bounds", ErrIndexAliasing, handle)
		}

		for _, other := range handles[:idx] {
			if other == handle {
				return nil, fmt.Errorf("%w: %s is requested twice", ErrIndexAliasing, handle)
			}
		}
	}

	result := make([]*T, len(handles))

	for idx, handle := range handles {
		entry := &arena.slots[handle]
		if !entry.occupied {
			return nil, fmt.Errorf("%w: %s", ErrNotOccupied, handle)
		}

		result[idx] = &entry.value
	}

	return result, nil
}

// Reserve makes room for at least additional more never-used slots.
func (arena *Arena[T]) Reserve(additional int) {
	if additional <= 0 || len(arena.slots)-int(arena.used.Load()) >= additional {
		return
	}

	arena.notifyGrow(arena.grow(additional))
}

func (arena *Arena[T]) occupied(handle Handle) bool {
	return handle != Nil && uint32(handle) < arena.used.Load() && arena.slots[handle].occupied
}

func (arena *Arena[T]) chain(handle Handle) *[2]Handle {
	return &arena.slots[handle].chain
}

// grow enlarges the store by the growth factor, and by at least minimum slots.
func (arena *Arena[T]) grow(minimum int) GrowEvent {
	oldLen := len(arena.slots)
	if oldLen == maxSlots {
		// [math.MaxUint32] slots is the most a uint32 handle can address.
		panic("arena: the store has reached the maximum number of slots for uint32 handles")
	}

	newLen := (oldLen * arena.growNum) / arena.growDen
	if newLen < oldLen+minimum {
		newLen = oldLen + minimum
	}

	newLen = min(newLen, maxSlots)

	slots := make([]slot[T], newLen)
	copy(slots, arena.slots)
	arena.slots = slots

	return GrowEvent{OldCap: oldLen - 1, NewCap: newLen - 1}
}

func (arena *Arena[T]) notifyGrow(event GrowEvent) {
	arena.logger.Debug("arena grown",
		slog.Int("old_cap", event.OldCap),
		slog.Int("new_cap", event.NewCap),
		slog.Duration("wait", event.Wait),
		slog.Int("len", arena.Len()),
	)

	if arena.onGrow != nil {
		arena.onGrow(event)
	}
}

func handleAt(idx int) Handle {
	return Handle(safeconv.MustIntToUint32(idx))
}

func doAssert(condition bool) {
	if !condition {
		panic("arena internal assertion failed")
	}
}
