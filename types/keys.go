package types

import (
	"time"

	"calcpad-go/errcode"
)

// ---- Keypad ----

// NumKeys is the number of logical keys on the matrix.
const NumKeys = 22

// MaxCombo is the largest key set reported as a single Combo.
const MaxCombo = 5

// LogicalKey identifies a key, 1..NumKeys. Zero is "no key".
type LogicalKey uint8

func (k LogicalKey) Valid() bool { return k >= 1 && k <= NumKeys }

// KeyEventType is the classification of a KeyEvent.
type KeyEventType uint8

const (
	KeyPress KeyEventType = iota + 1
	KeyRelease
	KeyLongPress
	KeyRepeat
	KeyCombo
)

func (t KeyEventType) String() string {
	switch t {
	case KeyPress:
		return "press"
	case KeyRelease:
		return "release"
	case KeyLongPress:
		return "long_press"
	case KeyRepeat:
		return "repeat"
	case KeyCombo:
		return "combo"
	default:
		return "unknown"
	}
}

func (t KeyEventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *KeyEventType) UnmarshalText(b []byte) error {
	for c := KeyPress; c <= KeyCombo; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return errcode.New(errcode.InvalidParams, "types.KeyEventType", "unknown key event type "+string(b))
}

// KeyEvent is copied by value through queues.
// For Combo events Key is the primary (lowest) key and Combo[:ComboCount]
// holds every key in the set.
type KeyEvent struct {
	Type       KeyEventType         `json:"type"`
	Key        LogicalKey           `json:"key"`
	Combo      [MaxCombo]LogicalKey `json:"combo"`
	ComboCount uint8                `json:"combo_count"`
	Timestamp  time.Time            `json:"ts"`
}

// Keys returns the combo keys, or the single key for other events.
func (e KeyEvent) Keys() []LogicalKey {
	if e.Type == KeyCombo {
		return e.Combo[:e.ComboCount]
	}
	return []LogicalKey{e.Key}
}
