package ramp

import (
	"time"

	"calcpad-go/x/mathx"
)

// Linear is a caller-driven 8-bit ramp: start it once, then sample At on
// every tick. Zero duration snaps to the target.
type Linear struct {
	from, to uint8
	start    time.Time
	dur      time.Duration
	active   bool
}

// Start begins a ramp from cur to to over d, beginning at now.
func (r *Linear) Start(cur, to uint8, d time.Duration, now time.Time) {
	r.from, r.to, r.start, r.dur = cur, to, now, d
	r.active = d > 0 && cur != to
}

// At returns the level at now and whether the ramp is still running.
func (r *Linear) At(now time.Time) (uint8, bool) {
	if !r.active {
		return r.to, false
	}
	el := now.Sub(r.start)
	if el >= r.dur {
		r.active = false
		return r.to, false
	}
	return mathx.Lerp8(r.from, r.to, int64(el), int64(r.dur)), true
}

func (r *Linear) Active() bool  { return r.active }
func (r *Linear) Target() uint8 { return r.to }

// Stop freezes the ramp at its target.
func (r *Linear) Stop() { r.active = false }
