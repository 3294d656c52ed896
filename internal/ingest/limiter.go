package ingest

// limiter.go implements concurrency control for imports.
//
// Two limits apply. A global semaphore caps how many files are imported at
// once. A per-scope slot lets only one import run for a given family at a
// time, so the deduplication lookups of one import always see the committed
// rows of the previous one. Requests that cannot get both within maxWait
// fail with ErrTooManyUploads.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no slot frees up before the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

// DefaultMaxConcurrentUploads is the default limit for parallel imports.
const DefaultMaxConcurrentUploads = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// Limiter bounds parallel imports and serializes imports per scope.
type Limiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.Mutex
	active int
	scopes map[int64]*scopeSlot
}

// scopeSlot guards one scope. refs counts the holder and the waiters; the
// slot is dropped from the map when it reaches zero.
type scopeSlot struct {
	ch   chan struct{}
	refs int
}

// NewLimiter creates a limiter that allows at most maxConcurrent
// simultaneous imports.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &Limiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		scopes:    make(map[int64]*scopeSlot),
	}
}

// Acquire waits for a global slot and for the scope's slot.
// The caller MUST call the returned release function exactly once.
func (l *Limiter) Acquire(ctx context.Context, scope int64) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyUploads
	}

	slot := l.joinScope(scope)
	select {
	case slot.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.leaveScope(scope, slot)
		<-l.semaphore
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyUploads
	}

	l.mu.Lock()
	l.active++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.mu.Unlock()
			<-slot.ch
			l.leaveScope(scope, slot)
			<-l.semaphore
		})
	}, nil
}

// joinScope returns the slot guarding scope and counts the caller in.
func (l *Limiter) joinScope(scope int64) *scopeSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.scopes[scope]
	if !ok {
		slot = &scopeSlot{ch: make(chan struct{}, 1)}
		l.scopes[scope] = slot
	}
	slot.refs++
	return slot
}

// leaveScope counts the caller out of slot and forgets the slot once no
// one holds or waits for it.
func (l *Limiter) leaveScope(scope int64, slot *scopeSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 && l.scopes[scope] == slot {
		delete(l.scopes, scope)
	}
}

func (l *Limiter) scopeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scopes)
}

// ActiveCount returns the number of imports holding a slot.
func (l *Limiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent imports.
func (l *Limiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free global slots.
func (l *Limiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active imports complete or ctx is done.
// Used for graceful shutdown.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
