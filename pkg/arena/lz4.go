package arena

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// Block tags. Incompressible input is kept raw.
const (
	blockLZ4 byte = iota
	blockRaw
)

// CompressBytes compresses data with LZ4. The result starts with a tag byte.
func CompressBytes(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{blockRaw}, nil
	}

	compressed := make([]byte, 1+lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, compressed[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	if written == 0 || written >= len(data) {
		raw := make([]byte, 1+len(data))
		raw[0] = blockRaw
		copy(raw[1:], data)

		return raw, nil
	}

	compressed[0] = blockLZ4

	return compressed[:1+written], nil
}

// DecompressBytes restores size bytes previously compressed with CompressBytes.
func DecompressBytes(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrCorruptSnapshot)
	}

	switch data[0] {
	case blockRaw:
		if len(data)-1 != size {
			return nil, fmt.Errorf("%w: raw block holds %d bytes instead of %d", ErrCorruptSnapshot, len(data)-1, size)
		}

		out := make([]byte, size)
		copy(out, data[1:])

		return out, nil
	case blockLZ4:
		out := make([]byte, size)

		read, err := lz4.UncompressBlock(data[1:], out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
		}

		if read != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes instead of %d", ErrCorruptSnapshot, read, size)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown block tag %d", ErrCorruptSnapshot, data[0])
	}
}

// CompressUInt32Slice compresses a slice of uint32-s with LZ4.
func CompressUInt32Slice(data []uint32) ([]byte, error) {
	buf := make([]byte, len(data)*uint32ByteSize)
	for idx, value := range data {
		binary.LittleEndian.PutUint32(buf[idx*uint32ByteSize:], value)
	}

	return CompressBytes(buf)
}

// DecompressUInt32Slice decompresses a slice of uint32-s previously compressed with LZ4.
// `result` must be preallocated.
func DecompressUInt32Slice(data []byte, result []uint32) error {
	decompressed, err := DecompressBytes(data, len(result)*uint32ByteSize)
	if err != nil {
		return err
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint32(decompressed[idx*uint32ByteSize:])
	}

	return nil
}
