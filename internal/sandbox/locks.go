package sandbox

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/antiwinter/finger/internal/window"
)

// WindowLocks serializes input actuation per physical window. Two bots
// bound to the same window keep independent tick schedules, but their
// click/tap/type calls must not interleave at the OS level, and a shared
// limiter paces the combined event stream.
type WindowLocks struct {
	mu      sync.Mutex
	ratePer int
	locks   map[window.ID]*WindowLock
}

type WindowLock struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	refs    int
}

func NewWindowLocks(inputRatePerSec int) *WindowLocks {
	if inputRatePerSec <= 0 {
		inputRatePerSec = 25
	}
	return &WindowLocks{
		ratePer: inputRatePerSec,
		locks:   map[window.ID]*WindowLock{},
	}
}

// Acquire returns the shared lock for a window, creating it on first use.
// Each Acquire must be paired with a Release when the instance is
// destroyed.
func (r *WindowLocks) Acquire(id window.ID) *WindowLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.locks[id]
	if l == nil {
		l = &WindowLock{limiter: rate.NewLimiter(rate.Limit(r.ratePer), r.ratePer)}
		r.locks[id] = l
	}
	l.refs++
	return l
}

func (r *WindowLocks) Release(id window.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.locks[id]
	if l == nil {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(r.locks, id)
	}
}

// do runs one actuation under the lock, paced by the shared limiter. ctx
// cancellation (instance teardown) skips the action instead of firing a
// late input event.
func (l *WindowLock) do(ctx context.Context, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.limiter.Wait(ctx); err != nil {
		return
	}
	fn()
}
