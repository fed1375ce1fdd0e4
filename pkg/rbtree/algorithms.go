package rbtree

import "github.com/Sumatoshi-tech/rbforest/pkg/arena"

// nodes is what the tree algorithms need from an arena guard.
type nodes[K, V any] interface {
	Ref(handle arena.Handle) *node[K, V]
	Meta() *bounds
	Len() int
}

type query[K, V any] struct {
	nodes nodes[K, V]
	cmp   func(a, b K) int
}

func (q query[K, V]) at(handle arena.Handle) *node[K, V] {
	return q.nodes.Ref(handle)
}

func (q query[K, V]) meta() *bounds {
	return q.nodes.Meta()
}

func (q query[K, V]) colorOf(handle arena.Handle) Color {
	if handle == arena.Nil {
		return Black
	}

	return q.at(handle).color
}

// search descends from the root. On a hit it returns the node and found. On a miss it
// returns the last node visited and the side under which key would be attached, or Nil
// for an empty tree.
func (q query[K, V]) search(key K) (arena.Handle, Side, bool) {
	return q.descend(func(n *node[K, V]) int {
		return q.cmp(n.key, key)
	})
}

// descend walks down using compare, which orders a node relative to the target.
func (q query[K, V]) descend(compare func(*node[K, V]) int) (arena.Handle, Side, bool) {
	current := q.meta().root
	if current == arena.Nil {
		return arena.Nil, Left, false
	}

	for {
		n := q.at(current)

		var side Side

		switch c := compare(n); {
		case c == 0:
			return current, Left, true
		case c > 0:
			side = Left
		default:
			side = Right
		}

		child := n.children[side]
		if child == arena.Nil {
			return current, side, false
		}

		current = child
	}
}

// childSide returns the side under which handle hangs from its parent.
func (q query[K, V]) childSide(handle arena.Handle) Side {
	parent := q.at(q.at(handle).parent)
	if parent.children[Right] == handle {
		return Right
	}

	doAssert(parent.children[Left] == handle)

	return Left
}

// mutation holds the structural algorithms. They require exclusive access to the tree.
type mutation[K, V any] struct {
	query[K, V]
}

// replaceChild points the link from parent to old at replacement instead.
func (m mutation[K, V]) replaceChild(parent, old, replacement arena.Handle) {
	if parent == arena.Nil {
		m.meta().root = replacement

		return
	}

	pn := m.at(parent)
	if pn.children[Left] == old {
		pn.children[Left] = replacement
	} else {
		doAssert(pn.children[Right] == old)
		pn.children[Right] = replacement
	}
}

// rotate moves handle down to side; its child on the other side takes its place.
func (m mutation[K, V]) rotate(side Side, handle arena.Handle) {
	other := side.Other()
	n := m.at(handle)

	pivot := n.children[other]
	doAssert(pivot != arena.Nil)

	pn := m.at(pivot)

	inner := pn.children[side]
	n.children[other] = inner

	if inner != arena.Nil {
		m.at(inner).parent = handle
	}

	pn.parent = n.parent
	m.replaceChild(n.parent, handle, pivot)

	pn.children[side] = handle
	n.parent = pivot
}

// link attaches a detached node as the side child of parent, splices it into the order
// chain and rebalances. A Nil parent makes the node the root of an empty tree.
func (m mutation[K, V]) link(handle, parent arena.Handle, side Side) {
	meta := m.meta()
	n := m.at(handle)
	n.parent = parent
	n.children = [2]arena.Handle{}

	if parent == arena.Nil {
		doAssert(meta.root == arena.Nil)
		n.color = Black
		n.order = [2]arena.Handle{}
		meta.root = handle
		meta.ends = [2]arena.Handle{handle, handle}

		return
	}

	n.color = Red

	pn := m.at(parent)
	doAssert(pn.children[side] == arena.Nil)
	pn.children[side] = handle

	// A new leaf sits between parent and the neighbor parent pointed at on the same side.
	neighbor := pn.order[side]
	n.order[side] = neighbor
	n.order[side.Other()] = parent
	pn.order[side] = handle

	if neighbor != arena.Nil {
		m.at(neighbor).order[side.Other()] = handle
	} else {
		meta.ends[side] = handle
	}

	// The root is black, so its children need no fixing.
	if parent != meta.root {
		m.fixInsert(handle)
	}
}

func (m mutation[K, V]) fixInsert(handle arena.Handle) {
	for {
		parent := m.at(handle).parent
		if parent == arena.Nil || m.at(parent).color == Black {
			break
		}

		// A red parent is never the root, so the grandparent exists.
		grand := m.at(parent).parent
		side := m.childSide(parent)
		uncle := m.at(grand).children[side.Other()]

		if m.colorOf(uncle) == Red {
			m.at(parent).color = Black
			m.at(uncle).color = Black
			m.at(grand).color = Red
			handle = grand

			continue
		}

		if m.childSide(handle) != side {
			m.rotate(side, parent)
			handle, parent = parent, handle
		}

		m.at(parent).color = Black
		m.at(grand).color = Red
		m.rotate(side.Other(), grand)

		break
	}

	m.at(m.meta().root).color = Black
}

// transplant puts the subtree rooted at replacement in place of the one rooted at old.
func (m mutation[K, V]) transplant(old, replacement arena.Handle) {
	parent := m.at(old).parent
	m.replaceChild(parent, old, replacement)

	if replacement != arena.Nil {
		m.at(replacement).parent = parent
	}
}

// unlink removes a node from the tree structure and the order chain. The slot itself
// is left to the caller.
func (m mutation[K, V]) unlink(handle arena.Handle) {
	n := m.at(handle)
	removed := n.color

	var child, childParent arena.Handle

	switch {
	case n.children[Left] == arena.Nil:
		child, childParent = n.children[Right], n.parent
		m.transplant(handle, child)
	case n.children[Right] == arena.Nil:
		child, childParent = n.children[Left], n.parent
		m.transplant(handle, child)
	default:
		// With a right subtree the successor is its minimum, found through the order chain.
		successor := n.order[Right]
		sn := m.at(successor)
		removed = sn.color
		child = sn.children[Right]

		if sn.parent == handle {
			childParent = successor
		} else {
			childParent = sn.parent
			m.transplant(successor, child)
			sn.children[Right] = n.children[Right]
			m.at(sn.children[Right]).parent = successor
		}

		m.transplant(handle, successor)
		sn.children[Left] = n.children[Left]
		m.at(sn.children[Left]).parent = successor
		sn.color = n.color
	}

	if removed == Black {
		m.fixRemove(child, childParent)
	}

	m.unchain(handle)

	n.parent = arena.Nil
	n.children = [2]arena.Handle{}
}

// fixRemove restores the black height after a black node was unlinked. handle may be
// Nil, so its parent is tracked separately.
func (m mutation[K, V]) fixRemove(handle, parent arena.Handle) {
	meta := m.meta()

	for handle != meta.root && m.colorOf(handle) == Black {
		// The sibling of a doubly black position always exists.
		side := Right
		if m.at(parent).children[Left] == handle {
			side = Left
		}

		other := side.Other()

		sibling := m.at(parent).children[other]
		if m.colorOf(sibling) == Red {
			m.at(sibling).color = Black
			m.at(parent).color = Red
			m.rotate(side, parent)
			sibling = m.at(parent).children[other]
		}

		sn := m.at(sibling)
		if m.colorOf(sn.children[Left]) == Black && m.colorOf(sn.children[Right]) == Black {
			sn.color = Red
			handle = parent
			parent = m.at(handle).parent

			continue
		}

		if m.colorOf(sn.children[other]) == Black {
			m.at(sn.children[side]).color = Black
			sn.color = Red
			m.rotate(other, sibling)
			sibling = m.at(parent).children[other]
			sn = m.at(sibling)
		}

		sn.color = m.at(parent).color
		m.at(parent).color = Black
		m.at(sn.children[other]).color = Black
		m.rotate(side, parent)
		handle = meta.root

		break
	}

	if handle != arena.Nil {
		m.at(handle).color = Black
	}
}

// unchain splices a node out of the order chain, updating the ends.
func (m mutation[K, V]) unchain(handle arena.Handle) {
	meta := m.meta()
	n := m.at(handle)

	for _, side := range [2]Side{Left, Right} {
		neighbor := n.order[side]
		if neighbor != arena.Nil {
			m.at(neighbor).order[side.Other()] = n.order[side.Other()]
		} else {
			meta.ends[side] = n.order[side.Other()]
		}
	}

	n.order = [2]arena.Handle{}
}
