package rbtree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/rbforest/pkg/arena"
	"github.com/Sumatoshi-tech/rbforest/pkg/safeconv"
)

// Codec serializes keys or values for hibernation.
type Codec[T any] = arena.Codec[T]

// errShortBuffer is returned by the codecs when the input ends inside a value.
var errShortBuffer = errors.New("short buffer")

// Int64Codec encodes int64 values as zig-zag varints.
type Int64Codec struct{}

// Append implements Codec.
func (Int64Codec) Append(dst []byte, value int64) []byte {
	return binary.AppendVarint(dst, value)
}

// Decode implements Codec.
func (Int64Codec) Decode(src []byte) (int64, int, error) {
	value, read := binary.Varint(src)
	if read <= 0 {
		return 0, 0, fmt.Errorf("int64: %w", errShortBuffer)
	}

	return value, read, nil
}

// Uint32Codec encodes uint32 values as varints.
type Uint32Codec struct{}

// Append implements Codec.
func (Uint32Codec) Append(dst []byte, value uint32) []byte {
	return binary.AppendUvarint(dst, uint64(value))
}

// Decode implements Codec.
func (Uint32Codec) Decode(src []byte) (uint32, int, error) {
	value, read := binary.Uvarint(src)
	if read <= 0 || value > uint64(safeconv.MaxUint32) {
		return 0, 0, fmt.Errorf("uint32: %w", errShortBuffer)
	}

	return uint32(value), read, nil
}

// StringCodec encodes strings with a varint length prefix.
type StringCodec struct{}

// Append implements Codec.
func (StringCodec) Append(dst []byte, value string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(value)))

	return append(dst, value...)
}

// Decode implements Codec.
func (StringCodec) Decode(src []byte) (string, int, error) {
	size, read := binary.Uvarint(src)
	if read <= 0 || size > uint64(len(src)-read) {
		return "", 0, fmt.Errorf("string: %w", errShortBuffer)
	}

	end := read + safeconv.MustUint64ToInt(size)

	return string(src[read:end]), end, nil
}

// nodeCodec encodes whole nodes: key, value, links and color.
type nodeCodec[K, V any] struct {
	keys   Codec[K]
	values Codec[V]
}

func (c nodeCodec[K, V]) Append(dst []byte, n node[K, V]) []byte {
	dst = c.keys.Append(dst, n.key)
	dst = c.values.Append(dst, n.value)

	for _, handle := range [...]arena.Handle{n.parent, n.children[Left], n.children[Right], n.order[Left], n.order[Right]} {
		dst = binary.AppendUvarint(dst, uint64(handle))
	}

	return append(dst, byte(n.color))
}

func (c nodeCodec[K, V]) Decode(src []byte) (node[K, V], int, error) {
	var n node[K, V]

	key, offset, err := c.keys.Decode(src)
	if err != nil {
		return n, 0, fmt.Errorf("key: %w", err)
	}

	value, read, err := c.values.Decode(src[offset:])
	if err != nil {
		return n, 0, fmt.Errorf("value: %w", err)
	}

	offset += read
	n.key, n.value = key, value

	for _, link := range [...]*arena.Handle{&n.parent, &n.children[Left], &n.children[Right], &n.order[Left], &n.order[Right]} {
		handle, size := binary.Uvarint(src[offset:])
		if size <= 0 || handle > uint64(safeconv.MaxUint32) {
			return n, 0, fmt.Errorf("link: %w", errShortBuffer)
		}

		*link = arena.Handle(handle)
		offset += size
	}

	if offset >= len(src) || src[offset] > byte(Black) {
		return n, 0, fmt.Errorf("color: %w", errShortBuffer)
	}

	n.color = Color(src[offset])

	return n, offset + 1, nil
}
