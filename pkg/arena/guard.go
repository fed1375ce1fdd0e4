package arena

import "iter"

// view carries the lookups shared by every guard level.
type view[T, M any] struct {
	port *Port[T, M]
}

// Len returns the number of slots owned by the port.
func (v view[T, M]) Len() int {
	return v.port.len
}

// Get returns a copy of the value under handle.
func (v view[T, M]) Get(handle Handle) (T, bool) {
	return v.port.store.arena.Get(handle)
}

// Contains reports whether handle is occupied.
func (v view[T, M]) Contains(handle Handle) bool {
	return v.port.store.arena.Contains(handle)
}

// Ref indexes the arena and panics on an invalid handle. Through a read guard the
// result must be treated as read-only.
func (v view[T, M]) Ref(handle Handle) *T {
	return v.port.store.arena.Ref(handle)
}

// Meta returns the port's meta value. Through a read guard the result must be
// treated as read-only.
func (v view[T, M]) Meta() *M {
	return &v.port.meta
}

// Handles yields the port's handles in allocation order.
func (v view[T, M]) Handles() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		arena := v.port.store.arena

		for handle := v.port.first; handle != Nil; {
			after := arena.chain(handle)[next]
			if !yield(handle) {
				return
			}

			handle = after
		}
	}
}

// mutView adds in-place mutation of allocated slots.
type mutView[T, M any] struct {
	view[T, M]
}

// GetMut returns a pointer to the value under handle.
func (v mutView[T, M]) GetMut(handle Handle) (*T, bool) {
	return v.port.store.arena.GetMut(handle)
}

// GetManyMut returns disjoint pointers for distinct, occupied handles.
func (v mutView[T, M]) GetManyMut(handles ...Handle) ([]*T, error) {
	return v.port.store.arena.GetManyMut(handles...)
}

// ReadGuard is a shared hold on a port.
type ReadGuard[T, M any] struct {
	view[T, M]
}

// Release drops the hold. Releasing twice is a no-op.
func (g *ReadGuard[T, M]) Release() {
	if g.port == nil {
		return
	}

	port := g.port
	g.port = nil
	port.mu.RUnlock()
	port.store.lock.rUnlock()
}

// WriteGuard is an exclusive hold on a port's bookkeeping and slots. It cannot
// allocate or free slots.
type WriteGuard[T, M any] struct {
	mutView[T, M]
}

// Release drops the hold. Releasing twice is a no-op.
func (g *WriteGuard[T, M]) Release() {
	if g.port == nil {
		return
	}

	port := g.port
	g.port = nil
	port.mu.Unlock()
	port.store.lock.rUnlock()
}

// AllocGuard is an exclusive hold on a port that may also allocate and free slots.
type AllocGuard[T, M any] struct {
	mutView[T, M]
}

// Release drops the hold. Releasing twice is a no-op.
func (g *AllocGuard[T, M]) Release() {
	if g.port == nil {
		return
	}

	port := g.port
	g.port = nil
	port.mu.Unlock()
	port.store.lock.uUnlock()
}

// Downgrade gives up the right to allocate and returns a write guard over the same
// port. The alloc guard must not be used afterwards.
//
// The write guard still holds the structural lock shared, so a sibling port that has
// to grow the arena waits until it is released. Releasing the write guard first is the
// only way for the same goroutine to allocate on a sibling of a full arena.
func (g *AllocGuard[T, M]) Downgrade() *WriteGuard[T, M] {
	port := g.port
	g.port = nil
	port.store.lock.downgradeToRead()

	return &WriteGuard[T, M]{mutView: mutView[T, M]{view: view[T, M]{port: port}}}
}

// Insert stores value in a new slot owned by the port. When the arena is full the
// structural lock is upgraded just long enough to grow it; pointers obtained before
// the call must be fetched again.
func (g *AllocGuard[T, M]) Insert(value T) Handle {
	s := g.port.store

	handle, ok := s.arena.InsertWithinCapacity(value)
	if !ok {
		s.grow()

		handle, ok = s.arena.InsertWithinCapacity(value)
		doAssert(ok)
	}

	g.port.link(handle)

	return handle
}

// Remove frees a slot owned by the port and returns its value.
func (g *AllocGuard[T, M]) Remove(handle Handle) (T, bool) {
	arena := g.port.store.arena
	if !arena.Contains(handle) {
		var zero T

		return zero, false
	}

	g.port.unlink(handle)

	return arena.Remove(handle)
}

// Detach releases ownership of an occupied slot without freeing it, so that another
// port sharing the arena can Adopt it.
func (g *AllocGuard[T, M]) Detach(handle Handle) bool {
	if !g.port.store.arena.Contains(handle) {
		return false
	}

	g.port.unlink(handle)

	return true
}

// Adopt takes ownership of an occupied slot previously detached from a port of the
// same arena.
func (g *AllocGuard[T, M]) Adopt(handle Handle) bool {
	if !g.port.store.arena.Contains(handle) {
		return false
	}

	g.port.link(handle)

	return true
}

// Clear frees every slot owned by the port by walking its allocation-order chain.
// The meta value is left untouched.
func (g *AllocGuard[T, M]) Clear() {
	arena := g.port.store.arena

	for handle := g.port.first; handle != Nil; {
		after := arena.chain(handle)[next]
		arena.Remove(handle)
		handle = after
	}

	g.port.first = Nil
	g.port.last = Nil
	g.port.len = 0
}
