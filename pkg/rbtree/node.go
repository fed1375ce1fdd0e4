package rbtree

import "github.com/Sumatoshi-tech/rbforest/pkg/arena"

// Side selects one of the two children of a node, or one direction of the order chain.
type Side uint8

// Left and Right index node children. In the order chain, Left points at the
// predecessor and Right at the successor.
const (
	Left Side = iota
	Right
)

// Other returns the mirrored side.
func (side Side) Other() Side {
	return side ^ 1
}

func (side Side) String() string {
	if side == Left {
		return "left"
	}

	return "right"
}

// Color is the red-black color of a node.
type Color uint8

// Node colors.
const (
	Red Color = iota
	Black
)

func (color Color) String() string {
	if color == Red {
		return "red"
	}

	return "black"
}

type node[K, V any] struct {
	key      K
	value    V
	parent   arena.Handle
	children [2]arena.Handle
	order    [2]arena.Handle
	color    Color
}

// bounds is the tree state kept in the port meta.
type bounds struct {
	root arena.Handle
	// ends holds the current minimum and maximum.
	ends [2]arena.Handle
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}
