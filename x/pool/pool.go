// Package pool is a fixed-capacity object arena with O(1) acquire/release.
//
// Slots are addressed by Handle (index + generation) rather than pointer, so
// a handle kept after Release can no longer reach the slot. The free list is
// guarded by a weighted semaphore acquired with a bounded timeout: when the
// lock cannot be taken in time, Acquire fails instead of blocking.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"calcpad-go/errcode"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long Acquire and Release wait for the lock.
const DefaultLockTimeout = 10 * time.Millisecond

// Handle identifies a checked-out slot. The zero Handle is invalid.
type Handle uint32

func makeHandle(idx uint16, gen uint16) Handle { return Handle(uint32(gen)<<16 | uint32(idx)) }

func (h Handle) index() uint16 { return uint16(h) }
func (h Handle) gen() uint16   { return uint16(h >> 16) }

// Valid reports whether h could refer to a slot (non-zero generation).
func (h Handle) Valid() bool { return h.gen() != 0 }

type slot[T any] struct {
	val   T
	gen   atomic.Uint32
	inUse atomic.Bool
}

type Pool[T any] struct {
	sem         *semaphore.Weighted
	lockTimeout time.Duration
	slots       []slot[T]
	free        []uint16 // stack of free indices
	used        atomic.Int32
	closed      atomic.Bool
}

type Option func(*options)

type options struct {
	lockTimeout time.Duration
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// New preallocates n slots. n is clamped to [1, 65535].
func New[T any](n int, opts ...Option) *Pool[T] {
	o := options{lockTimeout: DefaultLockTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	if n < 1 {
		n = 1
	}
	if n > 0xFFFF {
		n = 0xFFFF
	}
	p := &Pool[T]{
		sem:         semaphore.NewWeighted(1),
		lockTimeout: o.lockTimeout,
		slots:       make([]slot[T], n),
		free:        make([]uint16, n),
	}
	for i := range p.slots {
		p.slots[i].gen.Store(1)
		// Pop order: index 0 first.
		p.free[n-1-i] = uint16(i)
	}
	return p
}

func (p *Pool[T]) lock() bool {
	if p.sem.TryAcquire(1) {
		return true
	}
	if p.lockTimeout <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.lockTimeout)
	defer cancel()
	return p.sem.Acquire(ctx, 1) == nil
}

func (p *Pool[T]) unlock() { p.sem.Release(1) }

// Acquire checks out a free slot. It returns false when every slot is in
// use, the lock could not be taken within the timeout, or the pool is closed.
func (p *Pool[T]) Acquire() (Handle, bool) {
	if p.closed.Load() {
		return 0, false
	}
	if !p.lock() {
		return 0, false
	}
	defer p.unlock()
	n := len(p.free)
	if n == 0 {
		return 0, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	s := &p.slots[idx]
	s.inUse.Store(true)
	p.used.Add(1)
	return makeHandle(idx, uint16(s.gen.Load())), true
}

// Get returns the slot for h, or nil when h is stale or was never issued.
// The pointer is owned by the caller until Release.
func (p *Pool[T]) Get(h Handle) *T {
	s := p.slotFor(h)
	if s == nil {
		return nil
	}
	return &s.val
}

func (p *Pool[T]) slotFor(h Handle) *slot[T] {
	if !h.Valid() {
		return nil
	}
	idx := int(h.index())
	if idx >= len(p.slots) {
		return nil
	}
	s := &p.slots[idx]
	if !s.inUse.Load() || uint16(s.gen.Load()) != h.gen() {
		return nil
	}
	return s
}

// Release resets the slot to its zero value and returns it to the free list.
func (p *Pool[T]) Release(h Handle) error {
	if !p.lock() {
		return errcode.Wrap(errcode.Timeout, "pool.release", nil)
	}
	defer p.unlock()
	s := p.slotFor(h)
	if s == nil {
		return errcode.StaleHandle
	}
	var zero T
	s.val = zero
	s.inUse.Store(false)
	g := uint16(s.gen.Load()) + 1
	if g == 0 {
		g = 1
	}
	s.gen.Store(uint32(g))
	p.free = append(p.free, h.index())
	p.used.Add(-1)
	return nil
}

// UsedCount reports live checkouts.
func (p *Pool[T]) UsedCount() int { return int(p.used.Load()) }

func (p *Pool[T]) Cap() int { return len(p.slots) }

// Close makes every later Acquire fail. Outstanding handles may still be
// released.
func (p *Pool[T]) Close() { p.closed.Store(true) }

func (p *Pool[T]) Closed() bool { return p.closed.Load() }
