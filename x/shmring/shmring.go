// Package shmring is a single-producer, single-consumer byte ring.
//
// The console uses it to hand bytes from the UART (or stdin) reader goroutine
// to the system task without locks: the producer only advances wr, the
// consumer only advances rd.
package shmring

import (
	"sync/atomic"
)

type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	overflow atomic.Uint32 // bytes refused because the ring was full

	readable chan struct{} // 0->>0 available edge
}

// New allocates a ring of the given power-of-two size (>= 2).
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("shmring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

func (r *Ring) Space() int     { return int(r.size() - (r.wr.Load() - r.rd.Load())) }
func (r *Ring) Available() int { return int(r.wr.Load() - r.rd.Load()) }

// Overflow reports bytes dropped by WriteFrom since creation.
func (r *Ring) Overflow() uint32 { return r.overflow.Load() }

// Producer side

// WriteFrom copies as much of src as fits and returns the count. The rest
// is counted as overflow.
func (r *Ring) WriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	n = int(r.size() - before)
	if n > len(src) {
		n = len(src)
	}
	if lost := len(src) - n; lost > 0 {
		r.overflow.Add(uint32(lost))
	}
	if n == 0 {
		return 0
	}
	wrIdx := wr & r.mask
	first := copy(r.buf[wrIdx:], src[:n])
	copy(r.buf, src[first:n])
	r.wr.Store(wr + uint32(n)) // release

	if before == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return n
}

// Consumer side

// ReadInto moves up to len(dst) bytes out of the ring.
func (r *Ring) ReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	n = int(wr - rd)
	if n == 0 {
		return 0
	}
	if n > len(dst) {
		n = len(dst)
	}
	rdIdx := rd & r.mask
	first := copy(dst[:n], r.buf[rdIdx:])
	copy(dst[first:n], r.buf)
	r.rd.Store(rd + uint32(n)) // release
	return n
}

// Discard drops everything currently buffered. Consumer side only.
func (r *Ring) Discard() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	r.rd.Store(wr)
	return int(wr - rd)
}

// Readable is signalled when the ring goes from empty to non-empty.
func (r *Ring) Readable() <-chan struct{} { return r.readable }
