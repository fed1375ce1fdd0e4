package safeconv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustIntToUint32(t *testing.T) {
	t.Parallel()

	t.Run("normal_value", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, uint32(42), MustIntToUint32(42))
	})

	t.Run("max_uint32", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, MaxUint32, MustIntToUint32(int(MaxUint32)))
	})

	t.Run("negative_panics", func(t *testing.T) {
		t.Parallel()

		assert.PanicsWithValue(t, "safeconv: int to uint32 out of bounds", func() {
			MustIntToUint32(-1)
		})
	})

	t.Run("overflow_panics", func(t *testing.T) {
		t.Parallel()

		if MaxInt <= math.MaxUint32 {
			t.Skip("int is 32 bits wide")
		}

		assert.PanicsWithValue(t, "safeconv: int to uint32 out of bounds", func() {
			MustIntToUint32(int(MaxUint32) + 1)
		})
	})
}

func TestMustUint64ToUint32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(7), MustUint64ToUint32(7))
	assert.PanicsWithValue(t, "safeconv: uint64 to uint32 overflow", func() {
		MustUint64ToUint32(math.MaxUint32 + 1)
	})
}

func TestMustUint64ToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 9, MustUint64ToInt(9))
	assert.PanicsWithValue(t, "safeconv: uint64 to int overflow", func() {
		MustUint64ToInt(math.MaxUint64)
	})
}

func TestMustIntToUint64(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(3), MustIntToUint64(3))
	assert.PanicsWithValue(t, "safeconv: negative int to uint64 conversion", func() {
		MustIntToUint64(-3)
	})
}
