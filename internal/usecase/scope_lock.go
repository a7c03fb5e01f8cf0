package usecase

import (
	"context"
	"fmt"
	"sync"
)

// ScopeLocker serializes writers per settings scope. Different scopes
// never block each other.
type ScopeLocker struct {
	mu    sync.Mutex
	locks map[string]*scopeMutex
}

type scopeMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewScopeLocker creates a new scope locker.
func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{
		locks: make(map[string]*scopeMutex),
	}
}

// Lock acquires the lock for scope, or fails when ctx is done first. The
// returned unlock function must be called exactly once.
func (sl *ScopeLocker) Lock(ctx context.Context, scope string) (unlock func(), err error) {
	sl.mu.Lock()
	sm, ok := sl.locks[scope]
	if !ok {
		sm = &scopeMutex{}
		sl.locks[scope] = sm
	}
	sm.refCount++
	sl.mu.Unlock()

	release := func() {
		sm.mu.Unlock()
		sl.mu.Lock()
		sm.refCount--
		if sm.refCount == 0 {
			delete(sl.locks, scope)
		}
		sl.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		sm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The goroutine still owns a pending Lock; hand the mutex straight back once it lands.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("scope lock %s: %w", scope, ctx.Err())
	}
}

// ActiveCount returns the number of scopes with held or pending locks.
func (sl *ScopeLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
