package keypad

import (
	"time"

	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/timex"
)

// Timing holds the classifier thresholds.
type Timing struct {
	Debounce       time.Duration
	RepeatDelay    time.Duration
	RepeatRate     time.Duration
	LongPressDelay time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Debounce:       20 * time.Millisecond,
		RepeatDelay:    500 * time.Millisecond,
		RepeatRate:     100 * time.Millisecond,
		LongPressDelay: 800 * time.Millisecond,
	}
}

func (t Timing) Validate() error {
	if t.Debounce <= 0 || t.RepeatDelay <= 0 || t.RepeatRate <= 0 || t.LongPressDelay <= 0 {
		return errcode.New(errcode.InvalidParams, "keypad.Timing", "durations must be positive")
	}
	return nil
}

// WithSettings overlays the persisted keypad settings. Debounce is not
// user configurable and is kept.
func (t Timing) WithSettings(ks types.KeypadSettings) Timing {
	t.RepeatDelay = timex.Ms(ks.RepeatDelayMs)
	t.RepeatRate = timex.Ms(ks.RepeatRateMs)
	t.LongPressDelay = timex.Ms(ks.LongPressDelayMs)
	return t
}
