package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
)

func TestCompressDecompressUInt32Slice(t *testing.T) {
	t.Parallel()

	data := make([]uint32, 1000)
	for idx := range data {
		data[idx] = 7
	}

	packed, err := arena.CompressUInt32Slice(data)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(data)*4, "repetitive data should shrink")

	restored := make([]uint32, len(data))
	require.NoError(t, arena.DecompressUInt32Slice(packed, restored))
	assert.Equal(t, data, restored)
}

func TestCompressBytes_Incompressible(t *testing.T) {
	t.Parallel()

	data := []byte{0x13, 0x37, 0xca, 0xfe, 0x01}

	packed, err := arena.CompressBytes(data)
	require.NoError(t, err)
	assert.Len(t, packed, len(data)+1, "incompressible data is stored raw behind a tag")

	restored, err := arena.DecompressBytes(packed, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, restored)
}

func TestCompressBytes_Empty(t *testing.T) {
	t.Parallel()

	packed, err := arena.CompressBytes(nil)
	require.NoError(t, err)

	restored, err := arena.DecompressBytes(packed, 0)
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestDecompressBytes_Corrupt(t *testing.T) {
	t.Parallel()

	_, err := arena.DecompressBytes(nil, 4)
	require.ErrorIs(t, err, arena.ErrCorruptSnapshot)

	_, err = arena.DecompressBytes([]byte{0xff, 1, 2}, 2)
	require.ErrorIs(t, err, arena.ErrCorruptSnapshot)

	packed, err := arena.CompressBytes([]byte{1, 2, 3})
	require.NoError(t, err)

	_, err = arena.DecompressBytes(packed, 5)
	require.ErrorIs(t, err, arena.ErrCorruptSnapshot)
}

func TestDecompressUInt32Slice_SizeMismatch(t *testing.T) {
	t.Parallel()

	data := make([]uint32, 256)

	packed, err := arena.CompressUInt32Slice(data)
	require.NoError(t, err)

	err = arena.DecompressUInt32Slice(packed, make([]uint32, 128))
	require.ErrorIs(t, err, arena.ErrCorruptSnapshot)
}
