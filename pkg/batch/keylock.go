package batch

import (
	"path/filepath"
	"sync"

	"github.com/3leaps/goferry/pkg/locator"
)

// KeyLock hands out one mutex per key. Entries are dropped once no holder or
// waiter remains. The zero value is not usable; call NewKeyLock.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock returns an empty KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyEntry)}
}

// Lock blocks until key is free and returns its unlock func.
func (l *KeyLock) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// LockDestination locks the key DestinationKey derives from dst.
func (l *KeyLock) LockDestination(dst string) func() {
	return l.Lock(DestinationKey(dst))
}

func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// DestinationKey identifies a destination for serialization. Spellings of
// the same local path share a key; anything unparseable keys on itself.
func DestinationKey(dst string) string {
	p, err := locator.LocalPath(dst)
	if err != nil {
		return dst
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}
