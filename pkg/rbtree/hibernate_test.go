package rbtree //nolint:testpackage // shares the arena checker.

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

func TestTree_HibernateBoot(t *testing.T) {
	t.Parallel()

	tree := New[uint32, string]()
	sibling := tree.Split()

	guard := tree.Allocate()
	for key := range uint32(2000) {
		guard.Insert(key*7%2003, "value")
	}

	for key := range uint32(300) {
		guard.Remove(key)
	}
	guard.Release()

	other := sibling.Allocate()
	other.Insert(1, "sibling")
	other.Release()

	want := keysOf(tree)

	require.NoError(t, sibling.Hibernate(Uint32Codec{}, StringCodec{}))
	assert.True(t, tree.Stats().Hibernated)
	assert.Positive(t, tree.HibernatedSize())
	assert.Panics(t, func() { tree.Allocate() })

	require.NoError(t, tree.Boot(Uint32Codec{}, StringCodec{}))

	checkRedBlack(t, tree)
	checkRedBlack(t, sibling)
	assert.Equal(t, want, keysOf(tree))
	assert.Equal(t, []uint32{1}, keysOf(sibling))

	guard = tree.Allocate()
	defer guard.Release()

	assert.True(t, guard.Insert(5000, "after boot"))
	require.NoError(t, guard.Validate())
}

func TestNodeCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := nodeCodec[int64, string]{keys: Int64Codec{}, values: StringCodec{}}
	in := node[int64, string]{
		key:      -9,
		value:    "nine",
		parent:   3,
		children: [2]arena.Handle{4, 0},
		order:    [2]arena.Handle{0, 70000},
		color:    Black,
	}

	buf := codec.Append([]byte{0xaa}, in)

	out, read, err := codec.Decode(buf[1:])
	require.NoError(t, err)
	assert.Equal(t, len(buf)-1, read)
	assert.Equal(t, in, out)

	_, _, err = codec.Decode(buf[1 : len(buf)-1])
	require.Error(t, err)
}
