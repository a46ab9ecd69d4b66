package keymatrix

import (
	"sync/atomic"

	"calcpad-go/errcode"
	"calcpad-go/types"
)

// BitMapper maps a logical key to its scan bit.
type BitMapper interface {
	Bit(key types.LogicalKey) (uint8, bool)
}

// SimPort is a simulated matrix. It is safe for concurrent use: the host
// console presses keys while the keypad task reads.
type SimPort struct {
	bits BitMapper
	raw  atomic.Uint32
}

func NewSimPort(bits BitMapper) *SimPort {
	s := &SimPort{bits: bits}
	s.raw.Store(Released)
	return s
}

func (s *SimPort) ReadMatrix() uint32 { return s.raw.Load() }

// Set replaces the whole word.
func (s *SimPort) Set(raw uint32) { s.raw.Store(raw & Mask) }

// Press pulls the key's bit low.
func (s *SimPort) Press(key types.LogicalKey) error {
	bit, ok := s.bits.Bit(key)
	if !ok {
		return errcode.New(errcode.UnknownKey, "keymatrix.Press", "no such key")
	}
	s.update(func(w uint32) uint32 { return w &^ (1 << bit) })
	return nil
}

// Release returns the key's bit high.
func (s *SimPort) Release(key types.LogicalKey) error {
	bit, ok := s.bits.Bit(key)
	if !ok {
		return errcode.New(errcode.UnknownKey, "keymatrix.Release", "no such key")
	}
	s.update(func(w uint32) uint32 { return w | 1<<bit })
	return nil
}

// ReleaseAll returns every bit high.
func (s *SimPort) ReleaseAll() { s.raw.Store(Released) }

func (s *SimPort) update(fn func(uint32) uint32) {
	for {
		old := s.raw.Load()
		if s.raw.CompareAndSwap(old, fn(old)&Mask) {
			return
		}
	}
}
