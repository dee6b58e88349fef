package engine

import (
	"sync"
	"time"
)

// lockRegistry serializes writers per resource. Each resource maps to a
// one-slot channel; holding the token is holding the lock. Acquisition is
// bounded so a wedged writer surfaces as ErrBusy instead of a pile-up.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: map[string]chan struct{}{}}
}

func (lr *lockRegistry) lockFor(key string) chan struct{} {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	l, ok := lr.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		lr.locks[key] = l
	}
	return l
}

// acquire returns a release func, or ErrBusy after the wait budget.
func (lr *lockRegistry) acquire(key string, wait time.Duration) (func(), error) {
	l := lr.lockFor(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-timer.C:
		return nil, ErrBusy
	}
}
