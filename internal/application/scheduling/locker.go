package scheduling

import (
	"context"
	"sync"
)

// ClientLocker serialises work on one client across goroutines or processes.
// The returned unlock func must be called exactly once.
type ClientLocker interface {
	LockClient(ctx context.Context, clientID string) (unlock func(), err error)
}

// KeyedMutex is a single-process ClientLocker.  Entries are reference counted
// and removed once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// LockClient blocks until clientID is free or ctx is done.
func (k *KeyedMutex) LockClient(ctx context.Context, clientID string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[clientID]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[clientID] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(clientID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(clientID, e)
		})
	}, nil
}

func (k *KeyedMutex) release(clientID string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, clientID)
	}
	k.mu.Unlock()
}

// Len returns the number of keys currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
