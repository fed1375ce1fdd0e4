// Package rbtree implements red-black trees whose nodes live in a shared arena and are
// addressed by handles. Trees split from one another allocate from the same arena while
// keeping their own locks, so traffic on one tree never waits for another except while
// the arena grows.
package rbtree

import (
	"cmp"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

// Tree is an ordered map from K to V. All access goes through guards obtained from
// Read, Write and Allocate.
type Tree[K, V any] struct {
	port *arena.Port[node[K, V], bounds]
	cmp  func(a, b K) int
}

// New creates an empty tree over a fresh arena, ordering keys with cmp.Compare.
func New[K cmp.Ordered, V any](opts ...arena.Option) *Tree[K, V] {
	return NewFunc[K, V](cmp.Compare[K], opts...)
}

// NewFunc creates an empty tree over a fresh arena, ordering keys with compare.
func NewFunc[K, V any](compare func(a, b K) int, opts ...arena.Option) *Tree[K, V] {
	port, err := arena.NewPort[bounds](arena.New[node[K, V]](opts...))
	doAssert(err == nil)

	return &Tree[K, V]{port: port, cmp: compare}
}

// Split returns a new, empty tree sharing this tree's arena and key order.
func (tree *Tree[K, V]) Split() *Tree[K, V] {
	return &Tree[K, V]{port: tree.port.Split(), cmp: tree.cmp}
}

// SharesArena reports whether both trees allocate nodes from the same arena.
func (tree *Tree[K, V]) SharesArena(other *Tree[K, V]) bool {
	return tree.port.SharesArena(other.port)
}

// Len returns the number of keys in the tree.
func (tree *Tree[K, V]) Len() int {
	return tree.port.Len()
}

// Stats returns the counters of the tree and of the arena behind it.
func (tree *Tree[K, V]) Stats() arena.Stats {
	return tree.port.Stats()
}

// Read locks the tree for reading.
func (tree *Tree[K, V]) Read() *ReadGuard[K, V] {
	guard := tree.port.Read()

	return &ReadGuard[K, V]{query: query[K, V]{nodes: guard, cmp: tree.cmp}, guard: guard}
}

// Write locks the tree for in-place value updates.
func (tree *Tree[K, V]) Write() *WriteGuard[K, V] {
	guard := tree.port.Write()

	return &WriteGuard[K, V]{
		mutation: mutation[K, V]{query: query[K, V]{nodes: guard, cmp: tree.cmp}},
		guard:    guard,
	}
}

// Allocate locks the tree for inserts and removals. Allocate guards of trees sharing
// an arena exclude each other.
func (tree *Tree[K, V]) Allocate() *AllocGuard[K, V] {
	guard := tree.port.Allocate()

	return &AllocGuard[K, V]{
		mutation: mutation[K, V]{query: query[K, V]{nodes: guard, cmp: tree.cmp}},
		guard:    guard,
	}
}

// Hibernate compresses the arena behind the tree, and therefore every tree split from
// it. See arena.Port.Hibernate.
func (tree *Tree[K, V]) Hibernate(keys Codec[K], values Codec[V]) error {
	return tree.port.Hibernate(nodeCodec[K, V]{keys: keys, values: values})
}

// Boot restores a hibernated arena. keys and values must match the codecs given to Hibernate.
func (tree *Tree[K, V]) Boot(keys Codec[K], values Codec[V]) error {
	return tree.port.Boot(nodeCodec[K, V]{keys: keys, values: values})
}

// HibernatedSize returns the compressed size of the arena, or zero when it is awake.
func (tree *Tree[K, V]) HibernatedSize() int {
	return tree.port.HibernatedSize()
}

// HibernatedRawSize returns the size of the hibernated arena before compression.
func (tree *Tree[K, V]) HibernatedRawSize() int {
	return tree.port.HibernatedRawSize()
}
