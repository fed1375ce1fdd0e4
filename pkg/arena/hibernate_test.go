package arena_test

import (
	"encoding/binary"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

type intCodec struct{}

func (intCodec) Append(dst []byte, value int) []byte {
	return binary.AppendVarint(dst, int64(value))
}

func (intCodec) Decode(src []byte) (int, int, error) {
	value, read := binary.Varint(src)
	if read <= 0 {
		return 0, 0, errors.New("bad varint")
	}

	return int(value), read, nil
}

type brokenCodec struct{ intCodec }

func (brokenCodec) Decode([]byte) (int, int, error) {
	return 0, 0, errors.New("broken")
}

func TestPort_HibernateBoot(t *testing.T) {
	t.Parallel()

	port := newPort(t)
	other := port.Split()

	alloc := port.Allocate()
	handles := make([]arena.Handle, 0, 500)

	for idx := range 500 {
		handles = append(handles, alloc.Insert(idx*3))
	}

	for _, handle := range handles[100:200] {
		alloc.Remove(handle)
	}

	alloc.Release()

	alloc = other.Allocate()
	otherHandle := alloc.Insert(-5)
	alloc.Release()
	require.Equal(t, handles[199], otherHandle)

	read := port.Read()
	before := slices.Collect(read.Handles())
	read.Release()

	capacity := port.Stats().Cap

	require.NoError(t, port.Hibernate(intCodec{}))

	stats := other.Stats()
	assert.True(t, stats.Hibernated)
	assert.Equal(t, 401, stats.Shared)
	assert.Equal(t, capacity, stats.Cap)
	assert.Positive(t, port.HibernatedSize())
	assert.Less(t, port.HibernatedSize(), port.HibernatedRawSize())

	require.ErrorIs(t, other.Hibernate(intCodec{}), arena.ErrHibernated)
	assert.Panics(t, func() { port.Read() })
	assert.Panics(t, func() { other.Write() })
	assert.Panics(t, func() { port.Allocate() })

	require.NoError(t, other.Boot(intCodec{}))
	assert.Zero(t, port.HibernatedSize())
	assert.Zero(t, port.HibernatedRawSize())

	read = port.Read()
	assert.Equal(t, before, slices.Collect(read.Handles()))

	for idx, handle := range handles {
		value, ok := read.Get(handle)
		if idx >= 100 && idx < 200 {
			// The sibling's insert took the most recently freed slot.
			assert.Equal(t, handle == otherHandle, ok, handle)

			continue
		}

		require.True(t, ok)
		assert.Equal(t, idx*3, value)
	}

	read.Release()

	// The free list survives, so freed slots are reused before fresh ones.
	alloc = port.Allocate()
	reused := alloc.Insert(1)
	alloc.Release()
	assert.Contains(t, handles[100:200], reused)
	assert.NotEqual(t, otherHandle, reused)

	read = other.Read()
	defer read.Release()

	value, ok := read.Get(otherHandle)
	require.True(t, ok)
	assert.Equal(t, -5, value)
}

func TestPort_BootAwake(t *testing.T) {
	t.Parallel()

	port := newPort(t)
	require.NoError(t, port.Boot(intCodec{}))
	assert.False(t, port.Stats().Hibernated)
}

func TestPort_HibernateEmpty(t *testing.T) {
	t.Parallel()

	port := newPort(t)
	require.NoError(t, port.Hibernate(intCodec{}))
	assert.True(t, port.Stats().Hibernated)
	require.NoError(t, port.Boot(intCodec{}))

	alloc := port.Allocate()
	defer alloc.Release()

	alloc.Insert(1)
	assert.Equal(t, 1, alloc.Len())
}

func TestPort_HibernateThreshold(t *testing.T) {
	t.Parallel()

	port := newPort(t, arena.WithHibernationThreshold(10))

	alloc := port.Allocate()
	for idx := range 9 {
		alloc.Insert(idx)
	}
	alloc.Release()

	require.NoError(t, port.Hibernate(intCodec{}))
	assert.False(t, port.Stats().Hibernated, "below the threshold")

	alloc = port.Allocate()
	alloc.Insert(9)
	alloc.Release()

	require.NoError(t, port.Hibernate(intCodec{}))
	assert.True(t, port.Stats().Hibernated)
}

func TestPort_BootCorrupt(t *testing.T) {
	t.Parallel()

	port := newPort(t)

	alloc := port.Allocate()
	alloc.Insert(1)
	alloc.Release()

	require.NoError(t, port.Hibernate(intCodec{}))

	err := port.Boot(brokenCodec{})
	require.ErrorIs(t, err, arena.ErrCorruptSnapshot)
	assert.True(t, port.Stats().Hibernated, "a failed boot keeps the snapshot")

	require.NoError(t, port.Boot(intCodec{}))
}
