package arena

import "errors"

var (
	// ErrNotOccupied is returned when a handle points at a free slot.
	ErrNotOccupied = errors.New("one of the handles is not occupied")

	// ErrIndexAliasing is returned when a batched mutable lookup names one slot twice
	// or a handle lies outside the store.
	ErrIndexAliasing = errors.New("handles alias or are out of bounds")

	// ErrArenaOwned is returned when an arena that already backs a port is wrapped again.
	ErrArenaOwned = errors.New("arena already backs a port")

	// ErrHibernated is returned when hibernating an arena that is already hibernated.
	ErrHibernated = errors.New("arena is hibernated")

	// ErrCorruptSnapshot is returned when hibernated data cannot be restored.
	ErrCorruptSnapshot = errors.New("corrupt hibernated arena")
)
