package arena

import "strconv"

// Handle identifies one slot of an Arena. It stays valid until the slot is removed.
//
// The zero Handle is Nil: slot #0 of every store is reserved, so an optional handle
// costs no more than a raw one.
type Handle uint32

// Nil is the empty handle.
const Nil Handle = 0

// prev and next index the allocation-order links of a slot.
const (
	prev = 0
	next = 1
)

// Valid reports whether the handle is not Nil. It says nothing about occupancy.
func (h Handle) Valid() bool {
	return h != Nil
}

func (h Handle) String() string {
	if h == Nil {
		return "nil"
	}

	return "#" + strconv.FormatUint(uint64(h), 10)
}
