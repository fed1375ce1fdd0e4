package arena

import "sync"

// upgradableRWMutex is a reader/writer lock with a third, upgradeable mode.
//
// An upgradeable hold coexists with readers but excludes writers and other
// upgradeable holders. Its owner may promote it to exclusive in place with
// upgrade, which waits for the readers to drain. A pending writer or upgrade
// blocks newly arriving readers, so a grow step cannot starve.
//
// As with sync.RWMutex, a goroutine must not acquire a second read hold while it
// already holds one: a queued upgrade in between deadlocks both.
type upgradableRWMutex struct {
	mu   sync.Mutex
	cond sync.Cond

	readers int
	// pending counts goroutines waiting for exclusive access.
	pending    int
	writer     bool
	upgradable bool
}

func newUpgradableRWMutex() *upgradableRWMutex {
	lock := &upgradableRWMutex{}
	lock.cond.L = &lock.mu

	return lock
}

func (lock *upgradableRWMutex) rLock() {
	lock.mu.Lock()

	for lock.writer || lock.pending > 0 {
		lock.cond.Wait()
	}

	lock.readers++
	lock.mu.Unlock()
}

func (lock *upgradableRWMutex) rUnlock() {
	lock.mu.Lock()

	if lock.readers <= 0 {
		lock.mu.Unlock()
		panic("arena: read unlock of unlocked structural lock")
	}

	lock.readers--
	if lock.readers == 0 {
		lock.cond.Broadcast()
	}

	lock.mu.Unlock()
}

func (lock *upgradableRWMutex) uLock() {
	lock.mu.Lock()

	for lock.writer || lock.upgradable || lock.pending > 0 {
		lock.cond.Wait()
	}

	lock.upgradable = true
	lock.mu.Unlock()
}

func (lock *upgradableRWMutex) uUnlock() {
	lock.mu.Lock()

	if !lock.upgradable || lock.writer {
		lock.mu.Unlock()
		panic("arena: upgradeable unlock without an upgradeable hold")
	}

	lock.upgradable = false
	lock.cond.Broadcast()
	lock.mu.Unlock()
}

// upgrade promotes the caller's upgradeable hold to exclusive.
func (lock *upgradableRWMutex) upgrade() {
	lock.mu.Lock()

	if !lock.upgradable || lock.writer {
		lock.mu.Unlock()
		panic("arena: upgrade without an upgradeable hold")
	}

	lock.pending++

	for lock.readers > 0 {
		lock.cond.Wait()
	}

	lock.pending--
	lock.writer = true
	lock.mu.Unlock()
}

// downgrade turns an upgraded hold back into an upgradeable one.
func (lock *upgradableRWMutex) downgrade() {
	lock.mu.Lock()

	if !lock.upgradable || !lock.writer {
		lock.mu.Unlock()
		panic("arena: downgrade without an upgraded hold")
	}

	lock.writer = false
	lock.cond.Broadcast()
	lock.mu.Unlock()
}

// downgradeToRead turns an upgradeable hold into a plain read hold.
func (lock *upgradableRWMutex) downgradeToRead() {
	lock.mu.Lock()

	if !lock.upgradable || lock.writer {
		lock.mu.Unlock()
		panic("arena: downgrade without an upgradeable hold")
	}

	lock.upgradable = false
	lock.readers++
	lock.cond.Broadcast()
	lock.mu.Unlock()
}

func (lock *upgradableRWMutex) lock() {
	lock.mu.Lock()
	lock.pending++

	for lock.writer || lock.upgradable || lock.readers > 0 {
		lock.cond.Wait()
	}

	lock.pending--
	lock.writer = true
	lock.mu.Unlock()
}

func (lock *upgradableRWMutex) unlock() {
	lock.mu.Lock()

	if !lock.writer || lock.upgradable {
		lock.mu.Unlock()
		panic("arena: unlock of unlocked structural lock")
	}

	lock.writer = false
	lock.cond.Broadcast()
	lock.mu.Unlock()
}
