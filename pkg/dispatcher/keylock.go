package dispatcher

import "sync"

// keyLock serializes work per conversation key. Entries are dropped once no
// caller holds or waits for them.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()

	entry, ok := k.locks[key]
	if !ok {
		entry = &keyEntry{}
		k.locks[key] = entry
	}

	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		defer k.mu.Unlock()

		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
	}
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}
