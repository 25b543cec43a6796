package application

import (
	"sort"
	"sync"
)

func marketKey(id string) string { return "market:" + id }
func verseKey(id string) string  { return "verse:" + id }

// Locker serialises work per market and per verse. All the keys a
// caller needs must be taken with a single Lock call, which acquires them
// in sorted order.
type Locker struct {
	lock  sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*refLock)}
}

// Lock acquires every key and returns the function releasing them.
func (k *Locker) Lock(keys ...string) func() {
	keys = uniqueSorted(keys)

	held := make([]*refLock, 0, len(keys))
	for _, key := range keys {
		l := k.acquire(key)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.release(keys[i])
		}
	}
}

func (k *Locker) acquire(key string) *refLock {
	k.lock.Lock()
	defer k.lock.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *Locker) release(key string) {
	k.lock.Lock()
	defer k.lock.Unlock()

	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *Locker) size() int {
	k.lock.Lock()
	defer k.lock.Unlock()
	return len(k.locks)
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}
