package store

import (
	"sync"

	id "gatepass/pkg/domain"
)

// KeyedLocker serializes work per requester. Requesters never share a lock;
// the table mutex is held only to find or drop an entry.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[id.RequesterID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[id.RequesterID]*keyLock)}
}

// Lock blocks until requester's lock is held and returns its release func.
// Entries are dropped once no goroutine holds or waits for them.
func (l *KeyedLocker) Lock(requester id.RequesterID) (unlock func()) {
	l.mu.Lock()
	kl, ok := l.locks[requester]
	if !ok {
		kl = &keyLock{}
		l.locks[requester] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.mu.Unlock()
			l.mu.Lock()
			kl.refs--
			if kl.refs == 0 {
				delete(l.locks, requester)
			}
			l.mu.Unlock()
		})
	}
}

// Held returns the number of requesters with a held or awaited lock.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
