package keypad

import (
	"strconv"

	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/types"
)

// Positions maps logical key i+1 to a 1-based shift register position.
// The scan bit is position-1.
type Positions [types.NumKeys]uint8

// DefaultPositions is the wiring of the reference keypad. Each register is
// wired in reverse, so key 1 sits at position 8 (bit 7). Positions 17 and
// 18 are unused.
var DefaultPositions = Positions{
	8, 7, 6, 5, 4, 3, 2, 1,
	16, 15, 14, 13, 12, 11, 10, 9,
	24, 23, 22, 21, 20, 19,
}

// Validate checks that every position is in 1..24 and used once.
func (p Positions) Validate() error {
	var seen uint32
	for i, pos := range p {
		if pos < 1 || pos > keymatrix.Bits {
			return errcode.New(errcode.InvalidParams, "keypad.Positions",
				"key "+strconv.Itoa(i+1)+": position "+strconv.Itoa(int(pos))+" out of range")
		}
		m := uint32(1) << (pos - 1)
		if seen&m != 0 {
			return errcode.New(errcode.InvalidParams, "keypad.Positions",
				"position "+strconv.Itoa(int(pos))+" used twice")
		}
		seen |= m
	}
	return nil
}

// Bit returns the scan bit for key.
func (p Positions) Bit(key types.LogicalKey) (uint8, bool) {
	if !key.Valid() {
		return 0, false
	}
	return p[key-1] - 1, true
}

// Pressed reports whether key is down in an active-low raw word.
func (p Positions) Pressed(raw uint32, key types.LogicalKey) bool {
	bit, ok := p.Bit(key)
	return ok && raw&(1<<bit) == 0
}

// Mask returns the bits used by the table.
func (p Positions) Mask() uint32 {
	var m uint32
	for _, pos := range p {
		m |= 1 << (pos - 1)
	}
	return m
}
