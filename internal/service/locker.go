package service

import (
	"sync"
	"tigertrust/internal/domain"
)

// addressLocker serializes operations per record address. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type addressLocker struct {
	mu    sync.Mutex
	locks map[domain.Address]*addressLock
}

type addressLock struct {
	mu   sync.Mutex
	refs int
}

func newAddressLocker() *addressLocker {
	return &addressLocker{locks: make(map[domain.Address]*addressLock)}
}

func (l *addressLocker) Lock(addr domain.Address) func() {
	l.mu.Lock()
	lk, ok := l.locks[addr]
	if !ok {
		lk = &addressLock{}
		l.locks[addr] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, addr)
		}
		l.mu.Unlock()
	}
}

func (l *addressLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
