package rbtree

import (
	"fmt"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

// Validate checks the red-black rules, the parent links, the key order and the order
// chain. It returns an error wrapping ErrInvariant on the first violation.
func (q query[K, V]) Validate() error {
	meta := q.meta()
	size := q.nodes.Len()

	if (meta.root == arena.Nil) != (size == 0) {
		return fmt.Errorf("%w: root %s with %d keys", ErrInvariant, meta.root, size)
	}

	for _, end := range meta.ends {
		if (end == arena.Nil) != (size == 0) {
			return fmt.Errorf("%w: end %s with %d keys", ErrInvariant, end, size)
		}
	}

	if size == 0 {
		return nil
	}

	root := q.at(meta.root)
	if root.color != Black {
		return fmt.Errorf("%w: red root", ErrInvariant)
	}

	if root.parent != arena.Nil {
		return fmt.Errorf("%w: root has parent %s", ErrInvariant, root.parent)
	}

	inorder := make([]arena.Handle, 0, size)

	_, err := q.checkSubtree(meta.root, &inorder)
	if err != nil {
		return err
	}

	if len(inorder) != size {
		return fmt.Errorf("%w: %d nodes reachable, %d owned", ErrInvariant, len(inorder), size)
	}

	return q.checkChain(inorder)
}

// checkSubtree returns the black height of the subtree and appends its nodes in order.
func (q query[K, V]) checkSubtree(handle arena.Handle, inorder *[]arena.Handle) (int, error) {
	if handle == arena.Nil {
		return 1, nil
	}

	n := q.at(handle)

	left, err := q.checkChild(handle, Left, inorder)
	if err != nil {
		return 0, err
	}

	*inorder = append(*inorder, handle)

	right, err := q.checkChild(handle, Right, inorder)
	if err != nil {
		return 0, err
	}

	if left != right {
		return 0, fmt.Errorf("%w: black heights %d and %d under %s", ErrInvariant, left, right, handle)
	}

	if n.color == Black {
		return left + 1, nil
	}

	return left, nil
}

func (q query[K, V]) checkChild(handle arena.Handle, side Side, inorder *[]arena.Handle) (int, error) {
	n := q.at(handle)

	child := n.children[side]
	if child == arena.Nil {
		return 1, nil
	}

	cn := q.at(child)
	if cn.parent != handle {
		return 0, fmt.Errorf("%w: %s has parent %s instead of %s", ErrInvariant, child, cn.parent, handle)
	}

	if n.color == Red && cn.color == Red {
		return 0, fmt.Errorf("%w: red %s has red child %s", ErrInvariant, handle, child)
	}

	return q.checkSubtree(child, inorder)
}

// checkChain walks the order chain and compares it with the in-order traversal.
func (q query[K, V]) checkChain(inorder []arena.Handle) error {
	meta := q.meta()

	previous := arena.Nil
	current := meta.ends[Left]

	for _, expected := range inorder {
		if current != expected {
			return fmt.Errorf("%w: order chain visits %s instead of %s", ErrInvariant, current, expected)
		}

		n := q.at(current)
		if n.order[Left] != previous {
			return fmt.Errorf("%w: %s links back to %s instead of %s", ErrInvariant, current, n.order[Left], previous)
		}

		if previous != arena.Nil && q.cmp(q.at(previous).key, n.key) >= 0 {
			return fmt.Errorf("%w: keys are not ascending at %s", ErrInvariant, current)
		}

		previous, current = current, n.order[Right]
	}

	if current != arena.Nil || previous != meta.ends[Right] {
		return fmt.Errorf("%w: order chain does not end at the maximum", ErrInvariant)
	}

	return nil
}
