// Package keypad turns raw matrix scans into debounced, classified key
// events and runs the keypad task.
package keypad

import (
	"sync/atomic"
	"time"

	"calcpad-go/drivers/keymatrix"
	"calcpad-go/types"
)

type keyState struct {
	pressed     bool
	longPressed bool
	repeating   bool
	pressTime   time.Time
	lastRepeat  time.Time
}

// Classifier debounces whole scan words and runs the per-key state
// machines. Update must only be called from one goroutine; timing and
// auto-repeat setters are safe from any goroutine.
type Classifier struct {
	pos Positions

	debounce    atomic.Int64
	repeatDelay atomic.Int64
	repeatRate  atomic.Int64
	longPress   atomic.Int64
	autoRepeat  [types.NumKeys]atomic.Bool

	lastRaw    uint32
	stableRaw  uint32
	lastChange time.Time
	keys       [types.NumKeys]keyState
}

func NewClassifier(pos Positions, t Timing) (*Classifier, error) {
	if err := pos.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{pos: pos}
	if err := c.SetTiming(t); err != nil {
		return nil, err
	}
	c.Reset()
	return c, nil
}

// Reset forgets all key state. Every key reads as released.
func (c *Classifier) Reset() {
	c.lastRaw = keymatrix.Released
	c.stableRaw = keymatrix.Released
	c.lastChange = time.Time{}
	c.keys = [types.NumKeys]keyState{}
}

func (c *Classifier) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.debounce.Store(int64(t.Debounce))
	c.repeatDelay.Store(int64(t.RepeatDelay))
	c.repeatRate.Store(int64(t.RepeatRate))
	c.longPress.Store(int64(t.LongPressDelay))
	return nil
}

func (c *Classifier) Timing() Timing {
	return Timing{
		Debounce:       time.Duration(c.debounce.Load()),
		RepeatDelay:    time.Duration(c.repeatDelay.Load()),
		RepeatRate:     time.Duration(c.repeatRate.Load()),
		LongPressDelay: time.Duration(c.longPress.Load()),
	}
}

// SetAutoRepeat enables or disables repeat events for one key. Invalid keys
// are ignored.
func (c *Classifier) SetAutoRepeat(key types.LogicalKey, on bool) {
	if key.Valid() {
		c.autoRepeat[key-1].Store(on)
	}
}

func (c *Classifier) AutoRepeat(key types.LogicalKey) bool {
	return key.Valid() && c.autoRepeat[key-1].Load()
}

func (c *Classifier) SetAutoRepeatAll(on bool) {
	for i := range c.autoRepeat {
		c.autoRepeat[i].Store(on)
	}
}

// Positions returns the position table in use.
func (c *Classifier) Positions() Positions { return c.pos }

// Stable returns the last committed scan word.
func (c *Classifier) Stable() uint32 { return c.stableRaw }

// Held reports whether key is down in the committed state.
func (c *Classifier) Held(key types.LogicalKey) bool {
	return key.Valid() && c.keys[key-1].pressed
}

// Update feeds one scan word and appends the resulting events to dst.
// Within a cycle, Press and Release come first in ascending key order, then
// any Combo, then LongPress and Repeat in key order.
func (c *Classifier) Update(raw uint32, now time.Time, dst []types.KeyEvent) []types.KeyEvent {
	raw &= keymatrix.Mask

	if raw != c.lastRaw {
		c.lastRaw = raw
		c.lastChange = now
	}
	if raw != c.stableRaw && now.Sub(c.lastChange) >= time.Duration(c.debounce.Load()) {
		dst = c.commit(raw, now, dst)
	}
	return c.hold(now, dst)
}

func (c *Classifier) commit(raw uint32, now time.Time, dst []types.KeyEvent) []types.KeyEvent {
	changed := raw ^ c.stableRaw
	c.stableRaw = raw

	newPress := false
	for i := range c.keys {
		bit := uint32(1) << (c.pos[i] - 1)
		if changed&bit == 0 {
			continue
		}
		key := types.LogicalKey(i + 1)
		ks := &c.keys[i]
		down := raw&bit == 0
		switch {
		case down && !ks.pressed:
			*ks = keyState{pressed: true, pressTime: now, lastRepeat: now}
			dst = append(dst, types.KeyEvent{Type: types.KeyPress, Key: key, Timestamp: now})
			newPress = true
		case !down && ks.pressed:
			*ks = keyState{}
			dst = append(dst, types.KeyEvent{Type: types.KeyRelease, Key: key, Timestamp: now})
		}
	}
	if newPress {
		dst = c.combo(now, dst)
	}
	return dst
}

// combo emits one Combo when 2..MaxCombo keys are held. Larger sets are
// not reported.
func (c *Classifier) combo(now time.Time, dst []types.KeyEvent) []types.KeyEvent {
	ev := types.KeyEvent{Type: types.KeyCombo, Timestamp: now}
	n := 0
	for i := range c.keys {
		if !c.keys[i].pressed {
			continue
		}
		if n < types.MaxCombo {
			ev.Combo[n] = types.LogicalKey(i + 1)
		}
		n++
	}
	if n < 2 || n > types.MaxCombo {
		return dst
	}
	ev.ComboCount = uint8(n)
	ev.Key = ev.Combo[0]
	return append(dst, ev)
}

func (c *Classifier) hold(now time.Time, dst []types.KeyEvent) []types.KeyEvent {
	longPress := time.Duration(c.longPress.Load())
	repeatDelay := time.Duration(c.repeatDelay.Load())
	repeatRate := time.Duration(c.repeatRate.Load())

	for i := range c.keys {
		ks := &c.keys[i]
		if !ks.pressed {
			continue
		}
		key := types.LogicalKey(i + 1)
		held := now.Sub(ks.pressTime)

		if !ks.longPressed && held >= longPress {
			ks.longPressed = true
			dst = append(dst, types.KeyEvent{Type: types.KeyLongPress, Key: key, Timestamp: now})
		}
		if !c.autoRepeat[i].Load() {
			continue
		}
		if (!ks.repeating && held >= repeatDelay) || (ks.repeating && now.Sub(ks.lastRepeat) >= repeatRate) {
			ks.repeating = true
			ks.lastRepeat = now
			dst = append(dst, types.KeyEvent{Type: types.KeyRepeat, Key: key, Timestamp: now})
		}
	}
	return dst
}
