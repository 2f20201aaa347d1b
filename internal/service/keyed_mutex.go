package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per obligation. Entries are dropped once nobody
// holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedEntry)}
}

// Lock blocks until id is free and returns the matching unlock func
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	entry, ok := k.locks[id]
	if !ok {
		entry = &keyedEntry{}
		k.locks[id] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
