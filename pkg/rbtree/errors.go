package rbtree

import "errors"

var (
	// ErrDuplicateKey is returned when a moved node lands on a key the destination already holds.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrEntryDropped is returned by Move when dst already held the key and src gained it
	// again before the node could go back; the moved entry is freed.
	ErrEntryDropped = errors.New("moved entry dropped: key present in both trees")

	// ErrKeyAlias is returned when a multi-key mutable lookup names the same key twice.
	ErrKeyAlias = errors.New("keys alias")

	// ErrArenaMismatch is returned when moving a node between trees that do not share an arena.
	ErrArenaMismatch = errors.New("trees do not share an arena")

	// ErrInvariant is returned by Validate when the tree structure is inconsistent.
	ErrInvariant = errors.New("tree invariant violated")
)
