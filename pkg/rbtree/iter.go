package rbtree

import (
	"iter"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

// Iterator walks the entries of a guard in key order from both ends. It is only valid
// while the guard is held and the tree is not modified.
type Iterator[K, V any] struct {
	nodes     nodes[K, V]
	ends      [2]arena.Handle
	remaining int
}

// Len returns the number of entries not yet yielded from either end.
func (it *Iterator[K, V]) Len() int {
	return it.remaining
}

// Next yields the smallest remaining entry.
func (it *Iterator[K, V]) Next() (K, V, bool) {
	n := it.step(Left)
	if n == nil {
		var (
			key   K
			value V
		)

		return key, value, false
	}

	return n.key, n.value, true
}

// NextBack yields the largest remaining entry.
func (it *Iterator[K, V]) NextBack() (K, V, bool) {
	n := it.step(Right)
	if n == nil {
		var (
			key   K
			value V
		)

		return key, value, false
	}

	return n.key, n.value, true
}

// step consumes the entry at end side and moves that end inward.
func (it *Iterator[K, V]) step(side Side) *node[K, V] {
	if it.remaining == 0 {
		return nil
	}

	n := it.nodes.Ref(it.ends[side])
	it.ends[side] = n.order[side.Other()]
	it.remaining--

	return n
}

// MutIterator is an Iterator yielding pointers to the values.
type MutIterator[K, V any] struct {
	inner Iterator[K, V]
}

// Len returns the number of entries not yet yielded from either end.
func (it *MutIterator[K, V]) Len() int {
	return it.inner.remaining
}

// Next yields the smallest remaining entry.
func (it *MutIterator[K, V]) Next() (K, *V, bool) {
	return it.mutStep(Left)
}

// NextBack yields the largest remaining entry.
func (it *MutIterator[K, V]) NextBack() (K, *V, bool) {
	return it.mutStep(Right)
}

func (it *MutIterator[K, V]) mutStep(side Side) (K, *V, bool) {
	n := it.inner.step(side)
	if n == nil {
		var key K

		return key, nil, false
	}

	return n.key, &n.value, true
}

// Iter returns an iterator over all entries.
func (q query[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{nodes: q.nodes, ends: q.meta().ends, remaining: q.nodes.Len()}
}

// All yields the entries in ascending key order.
func (q query[K, V]) All() iter.Seq2[K, V] {
	return q.seq(Left)
}

// Backward yields the entries in descending key order.
func (q query[K, V]) Backward() iter.Seq2[K, V] {
	return q.seq(Right)
}

func (q query[K, V]) seq(from Side) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		it := q.Iter()

		for n := it.step(from); n != nil; n = it.step(from) {
			if !yield(n.key, n.value) {
				return
			}
		}
	}
}

// Keys yields the keys in ascending order.
func (q query[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for key := range q.All() {
			if !yield(key) {
				return
			}
		}
	}
}

// IterMut returns an iterator over all entries yielding value pointers.
func (m mutation[K, V]) IterMut() *MutIterator[K, V] {
	return &MutIterator[K, V]{inner: *m.Iter()}
}

// AllMut yields the entries in ascending key order with pointers to their values.
func (m mutation[K, V]) AllMut() iter.Seq2[K, *V] {
	return func(yield func(K, *V) bool) {
		it := m.IterMut()

		for key, value, ok := it.Next(); ok; key, value, ok = it.Next() {
			if !yield(key, value) {
				return
			}
		}
	}
}
