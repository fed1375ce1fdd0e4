package rbtree_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbforest/pkg/rbtree"
)

func TestForest_Routing(t *testing.T) {
	t.Parallel()

	forest := rbtree.NewForest[int64, string](4)
	assert.Equal(t, 4, forest.ShardCount())

	first := forest.Tree("file1")
	assert.Same(t, first, forest.Tree("file1"))

	hits := map[int]int{}

	for idx := range 100 {
		name := fmt.Sprintf("file%d", idx)
		forest.Tree(name)
		hits[forest.ShardOf(name)]++
	}

	assert.Len(t, hits, 4)
	assert.Len(t, forest.Names(), 100)

	_, ok := forest.Lookup("nope")
	assert.False(t, ok)
}

func TestForest_SameShardSharesArena(t *testing.T) {
	t.Parallel()

	forest := rbtree.NewForest[int64, string](3)

	trees := map[int][]*rbtree.Tree[int64, string]{}

	for idx := range 30 {
		name := fmt.Sprintf("tree-%d", idx)
		shard := forest.ShardOf(name)
		trees[shard] = append(trees[shard], forest.Tree(name))
	}

	for shard, group := range trees {
		for _, tree := range group[1:] {
			assert.True(t, group[0].SharesArena(tree), "shard %d", shard)
		}

		for other, otherGroup := range trees {
			if other != shard {
				assert.False(t, group[0].SharesArena(otherGroup[0]))
			}
		}
	}
}

func TestNewForest_ClampsShards(t *testing.T) {
	t.Parallel()

	forest := rbtree.NewForest[int64, string](0)
	assert.Equal(t, 1, forest.ShardCount())
	assert.Zero(t, forest.ShardOf("anything"))
}

func TestForest_HibernateBoot(t *testing.T) {
	t.Parallel()

	forest := rbtree.NewForest[int64, string](2)

	for idx := range 10 {
		guard := forest.Tree(fmt.Sprintf("t%d", idx)).Allocate()
		for key := range int64(50) {
			guard.Insert(key, fmt.Sprintf("%d-%d", idx, key))
		}
		guard.Release()
	}

	keys, values := rbtree.Int64Codec{}, rbtree.StringCodec{}

	require.NoError(t, forest.Hibernate(keys, values))
	assert.Positive(t, forest.HibernatedSize())
	assert.Less(t, forest.HibernatedSize(), forest.HibernatedRawSize())

	for _, stats := range forest.Stats() {
		assert.True(t, stats.Hibernated, stats.Name)
		assert.Equal(t, 50, stats.Len, stats.Name)
	}

	assert.Panics(t, func() { forest.Tree("t0").Read() })

	err := forest.Hibernate(keys, values)
	require.ErrorIs(t, err, rbtree.ErrHibernateShards)

	require.NoError(t, forest.Boot(keys, values))
	assert.Zero(t, forest.HibernatedSize())

	read := forest.Tree("t7").Read()
	defer read.Release()

	value, ok := read.Get(49)
	require.True(t, ok)
	assert.Equal(t, "7-49", value)
	require.NoError(t, read.Validate())
}
