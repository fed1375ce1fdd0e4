package arena

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Codec serializes slot values for hibernation.
type Codec[T any] interface {
	// Append encodes value at the end of dst.
	Append(dst []byte, value T) []byte
	// Decode reads one value from the front of src and reports how many bytes it used.
	Decode(src []byte) (T, int, error)
}

// Link planes, deinterleaved because each compresses far better on its own.
const (
	planeOccupied = iota
	planeFree
	planePrev
	planeNext
	planeCount
)

type hibernated struct {
	planes     [planeCount][]byte
	payload    []byte
	slotCount  int
	used       int
	payloadLen int
	free       Handle
}

func (h *hibernated) size() int {
	total := len(h.payload)
	for _, plane := range h.planes {
		total += len(plane)
	}

	return total
}

// rawSize is the number of bytes the planes and payload took before compression.
func (h *hibernated) rawSize() int {
	return h.payloadLen + planeCount*h.used*uint32ByteSize
}

// Hibernate compresses the whole arena shared by this port and its splits. Until
// Boot, acquiring a guard on any of those ports panics. Arenas holding fewer slots
// than the hibernation threshold are left as they are.
func (port *Port[T, M]) Hibernate(codec Codec[T]) error {
	s := port.store

	s.lock.lock()
	defer s.lock.unlock()

	if s.frozen != nil {
		return ErrHibernated
	}

	if s.arena.Len() < s.arena.hibernationThreshold {
		return nil
	}

	frozen, err := freeze(s.arena, codec)
	if err != nil {
		return fmt.Errorf("hibernate: %w", err)
	}

	s.frozen = frozen
	s.arena.slots = nil
	s.arena.free = Nil

	s.arena.logger.Debug("arena hibernated",
		slog.Int("slots", frozen.used),
		slog.Int("bytes", frozen.size()),
		slog.Int("raw_bytes", frozen.rawSize()),
	)

	return nil
}

// Boot performs the opposite of Hibernate. Handles held before hibernation keep
// pointing at the same values. Booting an awake arena does nothing.
func (port *Port[T, M]) Boot(codec Codec[T]) error {
	s := port.store

	s.lock.lock()
	defer s.lock.unlock()

	if s.frozen == nil {
		return nil
	}

	slots, err := thaw(s.frozen, codec)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	s.arena.slots = slots
	s.arena.free = s.frozen.free
	s.frozen = nil

	return nil
}

// HibernatedSize returns the compressed size in bytes, or zero for an awake arena.
func (port *Port[T, M]) HibernatedSize() int {
	port.store.lock.rLock()
	defer port.store.lock.rUnlock()

	if port.store.frozen == nil {
		return 0
	}

	return port.store.frozen.size()
}

// HibernatedRawSize returns the size in bytes of the hibernated data before
// compression, or zero for an awake arena.
func (port *Port[T, M]) HibernatedRawSize() int {
	port.store.lock.rLock()
	defer port.store.lock.rUnlock()

	if port.store.frozen == nil {
		return 0
	}

	return port.store.frozen.rawSize()
}

func freeze[T any](arena *Arena[T], codec Codec[T]) (*hibernated, error) {
	used := int(arena.used.Load())
	planes := [planeCount][]uint32{}

	for idx := range planes {
		planes[idx] = make([]uint32, used)
	}

	var payload []byte

	for idx := range used {
		entry := &arena.slots[idx]
		if entry.occupied {
			planes[planeOccupied][idx] = 1
			payload = codec.Append(payload, entry.value)
		}

		planes[planeFree][idx] = uint32(entry.next)
		planes[planePrev][idx] = uint32(entry.chain[prev])
		planes[planeNext][idx] = uint32(entry.chain[next])
	}

	frozen := &hibernated{
		slotCount:  len(arena.slots),
		used:       used,
		payloadLen: len(payload),
		free:       arena.free,
	}

	errs := make([]error, planeCount+1)
	wg := &sync.WaitGroup{}
	wg.Add(planeCount + 1)

	for idx, plane := range planes {
		go func(planeIdx int, data []uint32) {
			defer wg.Done()

			frozen.planes[planeIdx], errs[planeIdx] = CompressUInt32Slice(data)
		}(idx, plane)
	}

	go func() {
		defer wg.Done()

		frozen.payload, errs[planeCount] = CompressBytes(payload)
	}()

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return nil, err
	}

	return frozen, nil
}

func thaw[T any](frozen *hibernated, codec Codec[T]) ([]slot[T], error) {
	planes := [planeCount][]uint32{}
	errs := make([]error, planeCount+1)

	var payload []byte

	wg := &sync.WaitGroup{}
	wg.Add(planeCount + 1)

	for idx := range planes {
		go func(planeIdx int) {
			defer wg.Done()

			planes[planeIdx] = make([]uint32, frozen.used)
			errs[planeIdx] = DecompressUInt32Slice(frozen.planes[planeIdx], planes[planeIdx])
		}(idx)
	}

	go func() {
		defer wg.Done()

		payload, errs[planeCount] = DecompressBytes(frozen.payload, frozen.payloadLen)
	}()

	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		return nil, err
	}

	slots := make([]slot[T], frozen.slotCount)

	for idx := range frozen.used {
		entry := &slots[idx]
		entry.next = Handle(planes[planeFree][idx])
		entry.chain = [2]Handle{Handle(planes[planePrev][idx]), Handle(planes[planeNext][idx])}

		if planes[planeOccupied][idx] == 0 {
			continue
		}

		value, read, decodeErr := codec.Decode(payload)
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: slot %s: %w", ErrCorruptSnapshot, handleAt(idx), decodeErr)
		}

		entry.value = value
		entry.occupied = true
		payload = payload[read:]
	}

	if len(payload) != 0 {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", ErrCorruptSnapshot, len(payload))
	}

	return slots, nil
}
