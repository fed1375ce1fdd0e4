package rbtree //nolint:testpackage // shares the arena checker.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(tree *Tree[int, string], keys ...int) {
	guard := tree.Allocate()
	defer guard.Release()

	for _, key := range keys {
		guard.Insert(key, "v")
	}
}

func TestMove(t *testing.T) {
	t.Parallel()

	src := New[int, string]()
	dst := src.Split()

	fill(src, 1, 2, 3, 4, 5)
	fill(dst, 10)

	shared := src.Stats().Shared

	moved, err := Move(dst, src, 3)
	require.NoError(t, err)
	assert.True(t, moved)

	assert.Equal(t, []int{1, 2, 4, 5}, keysOf(src))
	assert.Equal(t, []int{3, 10}, keysOf(dst))
	assert.Equal(t, shared, src.Stats().Shared, "the node keeps its slot")
	checkRedBlack(t, src)
	checkRedBlack(t, dst)

	moved, err = Move(dst, src, 42)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestMove_Duplicate(t *testing.T) {
	t.Parallel()

	src := New[int, string]()
	dst := src.Split()

	fill(src, 1, 2)
	fill(dst, 2)

	moved, err := Move(dst, src, 2)
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, moved)

	assert.Equal(t, []int{1, 2}, keysOf(src), "the node goes back")
	assert.Equal(t, []int{2}, keysOf(dst))
	checkRedBlack(t, src)
}

func TestMove_DuplicateReinsertedInSource(t *testing.T) {
	t.Parallel()

	src := New[int, string]()
	dst := src.Split()

	fill(src, 1, 2)
	fill(dst, 2)

	moved, err := move(dst, src, 2, func() {
		guard := src.Allocate()
		guard.Insert(2, "again")
		guard.Release()
	})
	require.ErrorIs(t, err, ErrEntryDropped)
	require.NotErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, moved)

	assert.Equal(t, []int{1, 2}, keysOf(src))
	assert.Equal(t, []int{2}, keysOf(dst))
	assert.Equal(t, 3, src.Stats().Shared, "the dropped node frees its slot")
	checkRedBlack(t, src)

	guard := src.Read()
	defer guard.Release()

	value, _ := guard.Get(2)
	assert.Equal(t, "again", value)
}

func TestMove_ArenaMismatch(t *testing.T) {
	t.Parallel()

	src := New[int, string]()
	fill(src, 1)

	_, err := Move(New[int, string](), src, 1)
	require.ErrorIs(t, err, ErrArenaMismatch)
	assert.Equal(t, 1, src.Len())
}

func TestMove_SameTree(t *testing.T) {
	t.Parallel()

	tree := New[int, string]()
	fill(tree, 1)

	moved, err := Move(tree, tree, 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, []int{1}, keysOf(tree))
}
