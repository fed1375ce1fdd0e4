package rbtree

import (
	"fmt"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

// Position tells where a search ended.
type Position uint8

// Search positions.
const (
	// Empty means the tree has no nodes.
	Empty Position = iota
	// Here means the key was found.
	Here
	// LeftOf means the target belongs right before the reported key.
	LeftOf
	// RightOf means the target belongs right after the reported key.
	RightOf
)

func (pos Position) String() string {
	switch pos {
	case Empty:
		return "empty"
	case Here:
		return "here"
	case LeftOf:
		return "left-of"
	case RightOf:
		return "right-of"
	default:
		return fmt.Sprintf("Position(%d)", uint8(pos))
	}
}

// SearchResult is the outcome of SearchBy. Key is unset for Empty.
type SearchResult[K any] struct {
	Key      K
	Position Position
}

// Len returns the number of keys.
func (q query[K, V]) Len() int {
	return q.nodes.Len()
}

// IsEmpty reports whether the tree holds no keys.
func (q query[K, V]) IsEmpty() bool {
	return q.nodes.Len() == 0
}

// Min returns the smallest key and its value.
func (q query[K, V]) Min() (K, V, bool) {
	return q.end(Left)
}

// Max returns the largest key and its value.
func (q query[K, V]) Max() (K, V, bool) {
	return q.end(Right)
}

func (q query[K, V]) end(side Side) (K, V, bool) {
	return q.entry(q.meta().ends[side])
}

func (q query[K, V]) entry(handle arena.Handle) (K, V, bool) {
	if handle == arena.Nil {
		var (
			key   K
			value V
		)

		return key, value, false
	}

	n := q.at(handle)

	return n.key, n.value, true
}

// Range returns the inclusive bounds of the keys, or false for an empty tree.
func (q query[K, V]) Range() (lo, hi K, ok bool) {
	ends := q.meta().ends
	if ends[Left] == arena.Nil {
		return lo, hi, false
	}

	return q.at(ends[Left]).key, q.at(ends[Right]).key, true
}

// Get returns the value stored under key.
func (q query[K, V]) Get(key K) (V, bool) {
	handle, _, found := q.search(key)
	if !found {
		var zero V

		return zero, false
	}

	return q.at(handle).value, true
}

// Contains reports whether key is present.
func (q query[K, V]) Contains(key K) bool {
	_, _, found := q.search(key)

	return found
}

// SearchBy walks the tree the way slices.BinarySearchFunc walks a sorted slice:
// compare orders an entry relative to the target. The tree must be sorted consistently
// with compare or the result is meaningless.
func (q query[K, V]) SearchBy(compare func(key K, value V) int) SearchResult[K] {
	handle, side, found := q.descend(func(n *node[K, V]) int {
		return compare(n.key, n.value)
	})

	var result SearchResult[K]

	switch {
	case handle == arena.Nil:
		result.Position = Empty
	case found:
		result.Position = Here
	case side == Left:
		result.Position = LeftOf
	default:
		result.Position = RightOf
	}

	if handle != arena.Nil {
		result.Key = q.at(handle).key
	}

	return result
}

// Ceil returns the smallest entry whose key is not less than key.
func (q query[K, V]) Ceil(key K) (K, V, bool) {
	return q.nearest(key, Right)
}

// Floor returns the largest entry whose key is not greater than key.
func (q query[K, V]) Floor(key K) (K, V, bool) {
	return q.nearest(key, Left)
}

// nearest returns the entry for key, or its neighbor toward side.
func (q query[K, V]) nearest(key K, toward Side) (K, V, bool) {
	handle, side, found := q.search(key)
	if handle == arena.Nil || found || side != toward {
		// An empty tree, a hit, or a miss where the last visited node already lies toward side.
		return q.entry(handle)
	}

	return q.entry(q.at(handle).order[toward])
}

// GetMut returns a pointer to the value stored under key. The pointer must not outlive
// the guard.
func (m mutation[K, V]) GetMut(key K) (*V, bool) {
	handle, _, found := m.search(key)
	if !found {
		return nil, false
	}

	return &m.at(handle).value, true
}

// GetPairMut returns pointers to the values of two distinct keys. Missing keys yield nil.
func (m mutation[K, V]) GetPairMut(a, b K) ([2]*V, error) {
	if m.cmp(a, b) == 0 {
		return [2]*V{}, fmt.Errorf("%w: %v", ErrKeyAlias, a)
	}

	first, _ := m.GetMut(a)
	second, _ := m.GetMut(b)

	return [2]*V{first, second}, nil
}

// GetMutWith returns a pointer to the value of key together with the values of others,
// resolved in the same pass. Missing keys yield nil. The companion pointers must be
// treated as read-only.
func (m mutation[K, V]) GetMutWith(key K, others ...K) (*V, []*V, error) {
	for _, other := range others {
		if m.cmp(key, other) == 0 {
			return nil, nil, fmt.Errorf("%w: %v", ErrKeyAlias, key)
		}
	}

	target, _ := m.GetMut(key)
	companions := make([]*V, len(others))

	for idx, other := range others {
		companions[idx], _ = m.GetMut(other)
	}

	return target, companions, nil
}

// ReadGuard is a shared hold on a tree.
type ReadGuard[K, V any] struct {
	query[K, V]

	guard *arena.ReadGuard[node[K, V], bounds]
}

// Release unlocks the tree. Releasing twice is a no-op.
func (g *ReadGuard[K, V]) Release() {
	g.guard.Release()
}

// WriteGuard is an exclusive hold on a tree that may update values in place.
type WriteGuard[K, V any] struct {
	mutation[K, V]

	guard *arena.WriteGuard[node[K, V], bounds]
}

// Release unlocks the tree. Releasing twice is a no-op.
func (g *WriteGuard[K, V]) Release() {
	g.guard.Release()
}

// AllocGuard is an exclusive hold on a tree that may also insert and remove keys.
type AllocGuard[K, V any] struct {
	mutation[K, V]

	guard *arena.AllocGuard[node[K, V], bounds]
}

// Release unlocks the tree. Releasing twice is a no-op.
func (g *AllocGuard[K, V]) Release() {
	g.guard.Release()
}

// Downgrade gives up the right to insert and remove, letting other trees of the arena
// allocate while the arena has room. An insert that has to grow the arena waits for the
// returned guard to be released, so do not keep it while inserting into a sibling from
// the same goroutine. The alloc guard must not be used afterwards.
func (g *AllocGuard[K, V]) Downgrade() *WriteGuard[K, V] {
	guard := g.guard.Downgrade()

	return &WriteGuard[K, V]{
		mutation: mutation[K, V]{query: query[K, V]{nodes: guard, cmp: g.cmp}},
		guard:    guard,
	}
}

// Insert stores value under key. It reports false when key was already present, in
// which case only the value is replaced.
func (g *AllocGuard[K, V]) Insert(key K, value V) bool {
	parent, side, found := g.search(key)
	if found {
		g.at(parent).value = value

		return false
	}

	// Allocating may grow the arena, so nothing is dereferenced across this call.
	handle := g.guard.Insert(node[K, V]{key: key, value: value})
	g.link(handle, parent, side)

	return true
}

// Remove deletes key and returns its value.
func (g *AllocGuard[K, V]) Remove(key K) (V, bool) {
	handle, _, found := g.search(key)
	if !found {
		var zero V

		return zero, false
	}

	g.unlink(handle)

	n, ok := g.guard.Remove(handle)
	doAssert(ok)

	return n.value, true
}

// Clear removes every key.
func (g *AllocGuard[K, V]) Clear() {
	g.guard.Clear()
	*g.meta() = bounds{}
}

// detach takes the node of key out of the tree without freeing its slot.
func (g *AllocGuard[K, V]) detach(key K) (arena.Handle, bool) {
	handle, _, found := g.search(key)
	if !found {
		return arena.Nil, false
	}

	g.unlink(handle)
	doAssert(g.guard.Detach(handle))

	return handle, true
}

// insertNode attaches a node detached from another tree of the same arena.
func (g *AllocGuard[K, V]) insertNode(handle arena.Handle) error {
	key := g.at(handle).key

	parent, side, found := g.search(key)
	if found {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
	}

	doAssert(g.guard.Adopt(handle))
	g.link(handle, parent, side)

	return nil
}
