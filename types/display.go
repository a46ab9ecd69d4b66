package types

import "time"

// DisplayKind selects how a DisplayUpdate is interpreted.
type DisplayKind uint8

const (
	DisplayText DisplayKind = iota + 1
	DisplayClear
	DisplayState
	DisplayBrightness
)

const displayTextMax = 32

// DisplayUpdate is a fixed-size value so it can live in a pool slot.
type DisplayUpdate struct {
	Kind      DisplayKind
	Text      [displayTextMax]byte
	TextLen   uint8
	Value     int32
	Timestamp time.Time
}

// SetText copies s, truncated to the slot capacity.
func (u *DisplayUpdate) SetText(s string) {
	n := copy(u.Text[:], s)
	u.TextLen = uint8(n)
}

func (u *DisplayUpdate) String() string { return string(u.Text[:u.TextLen]) }
