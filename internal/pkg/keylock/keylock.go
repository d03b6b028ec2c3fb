// Package keylock serializes work per key inside one process.
//
// Every mutation of a slot (acquire, release, promote, expire) runs while
// holding that slot's key, so at most one writer touches a slot at a time
// and events for the slot are published in the order the writes happened.
package keylock

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *Locker) Lock(key string) func() {
	e := l.acquire(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.release(key, e)
	}
}

// LockAll locks every distinct key in ascending order, so two callers with
// overlapping key sets can not deadlock. The returned func unlocks in
// reverse order.
func (l *Locker) LockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	for _, k := range uniq {
		unlocks = append(unlocks, l.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Len reports how many keys currently have a holder or waiter.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Locker) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
