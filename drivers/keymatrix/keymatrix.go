// Package keymatrix reads a 24-bit key matrix through a chain of
// 74HC165-style parallel-in shift registers.
//
// The scanner is bit-banged over injected lines so the same code runs on
// machine.Pin (rp2), periph.io GPIO (Linux) and the fakes used in tests.
package keymatrix

import (
	"time"

	"calcpad-go/errcode"
)

const (
	// Bits is the width of one scan word.
	Bits = 24
	// Mask selects the scan bits of a word.
	Mask uint32 = 1<<Bits - 1
	// Released is the idle word: inputs are active low.
	Released = Mask

	// PulseWidth is held for each half of every load and clock pulse.
	PulseWidth = 5 * time.Microsecond
)

// Output is a push-pull line.
type Output interface{ Set(high bool) }

// Input is a sampled line.
type Input interface{ Get() bool }

// OutputFunc adapts a function to Output.
type OutputFunc func(high bool)

func (f OutputFunc) Set(high bool) { f(high) }

// InputFunc adapts a function to Input.
type InputFunc func() bool

func (f InputFunc) Get() bool { return f() }

// Pins are the four lines of the register chain.
type Pins struct {
	Load   Output // PL, active low
	Clock  Output // CP, rising edge shifts
	Enable Output // CE, active low
	Data   Input  // Q7 of the last register
}

func (p Pins) valid() bool {
	return p.Load != nil && p.Clock != nil && p.Enable != nil && p.Data != nil
}

// Scanner implements the keypad port over Pins.
type Scanner struct {
	pins       Pins
	delay      func(time.Duration)
	configured bool
}

// New returns a scanner. A nil delay busy-waits with Spin.
func New(pins Pins, delay func(time.Duration)) (*Scanner, error) {
	if !pins.valid() {
		return nil, errcode.New(errcode.InvalidParams, "keymatrix.New", "all four lines are required")
	}
	if delay == nil {
		delay = Spin
	}
	return &Scanner{pins: pins, delay: delay}, nil
}

// Configure drives the idle line levels: CE held low, PL high, CP low.
func (s *Scanner) Configure() {
	s.pins.Enable.Set(false)
	s.pins.Load.Set(true)
	s.pins.Clock.Set(false)
	s.configured = true
}

// ReadMatrix latches the inputs and shifts out one word, MSB first.
// It must only be called from the keypad task.
func (s *Scanner) ReadMatrix() uint32 {
	if !s.configured {
		s.Configure()
	}
	p := s.pins

	p.Load.Set(false)
	s.delay(PulseWidth)
	p.Load.Set(true)
	s.delay(PulseWidth)

	var w uint32
	for i := 0; i < Bits; i++ {
		w <<= 1
		if p.Data.Get() {
			w |= 1
		}
		p.Clock.Set(true)
		s.delay(PulseWidth)
		p.Clock.Set(false)
		s.delay(PulseWidth)
	}
	return w & Mask
}

// Spin busy-waits for d. Scheduler sleeps are far too coarse for 5µs.
func Spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
