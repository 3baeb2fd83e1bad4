// Package keylock serializes work per string key.
//
// The attendance merger takes the lock for a record's composite key around its
// read-union-write so that two concurrent submissions for the same label never
// lose each other's members. Local serves a single process; Redis extends the
// guarantee across processes sharing one store.
package keylock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned when a lock could not be acquired before the context ended.
var ErrNotHeld = errors.New("lock not acquired")

// Locker acquires an exclusive lock for key. The returned unlock func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type entry struct {
	ch   chan struct{} // buffered(1), holding a token means locked
	refs int
}

// Local is an in-process keyed mutex. Entries are refcounted and dropped when
// no goroutine holds or waits for the key.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewLocal creates an empty keyed mutex.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Join(ErrNotHeld, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of live entries.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
