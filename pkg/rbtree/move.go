package rbtree

// Move transfers the node of key from src to dst without copying it to a new slot. Both
// trees must share an arena. The two trees are locked one after the other, never together.
// Move reports false when src does not hold key. When dst already holds key the node goes
// back to src and ErrDuplicateKey is returned. Should src have gained key in the meantime,
// the moved entry is freed and ErrEntryDropped is returned instead.
func Move[K, V any](dst, src *Tree[K, V], key K) (bool, error) {
	return move(dst, src, key, nil)
}

// move runs beforeRollback, when set, between the failed insert into dst and the
// return to src.
func move[K, V any](dst, src *Tree[K, V], key K, beforeRollback func()) (bool, error) {
	if !dst.SharesArena(src) {
		return false, ErrArenaMismatch
	}

	if dst.port == src.port {
		return src.Read().containsAndRelease(key), nil
	}

	guard := src.Allocate()
	handle, found := guard.detach(key)
	guard.Release()

	if !found {
		return false, nil
	}

	guard = dst.Allocate()
	err := guard.insertNode(handle)
	guard.Release()

	if err == nil {
		return true, nil
	}

	if beforeRollback != nil {
		beforeRollback()
	}

	guard = src.Allocate()
	defer guard.Release()

	if guard.insertNode(handle) != nil {
		guard.guard.Adopt(handle)
		guard.guard.Remove(handle)

		return false, ErrEntryDropped
	}

	return false, err
}

func (g *ReadGuard[K, V]) containsAndRelease(key K) bool {
	defer g.Release()

	return g.Contains(key)
}
