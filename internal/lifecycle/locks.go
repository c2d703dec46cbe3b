package lifecycle

import (
	"sync"
	"time"
)

// ScopeLocks serializes work per scope key (expert × use case). Slots
// are created lazily and never removed; key cardinality is bounded by
// experts × use cases.
type ScopeLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{slots: make(map[string]chan struct{})}
}

func (l *ScopeLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Acquire tries to take the scope lock within timeout. On success it
// returns a release func and true; release must be called exactly once
// (callers defer it so the lock is freed even on panic). On timeout it
// returns (nil, false) and callers skip the pass instead of blocking.
func (l *ScopeLocks) Acquire(key string, timeout time.Duration) (func(), bool) {
	s := l.slot(key)
	if timeout <= 0 {
		select {
		case s <- struct{}{}:
			return func() { <-s }, true
		default:
			return nil, false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	case <-timer.C:
		return nil, false
	}
}
