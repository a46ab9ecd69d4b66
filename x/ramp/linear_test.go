package ramp

import (
	"testing"
	"time"
)

func TestLinearRamp(t *testing.T) {
	var r Linear
	t0 := time.Unix(100, 0)
	r.Start(0, 200, 500*time.Millisecond, t0)

	if v, run := r.At(t0); v != 0 || !run {
		t.Fatalf("start = %d,%v", v, run)
	}
	if v, _ := r.At(t0.Add(250 * time.Millisecond)); v != 100 {
		t.Fatalf("midpoint = %d", v)
	}
	if v, run := r.At(t0.Add(600 * time.Millisecond)); v != 200 || run {
		t.Fatalf("end = %d,%v", v, run)
	}
	if r.Active() {
		t.Fatal("ramp still active after end")
	}
}

func TestZeroDurationSnaps(t *testing.T) {
	var r Linear
	now := time.Unix(0, 0)
	r.Start(10, 90, 0, now)
	if v, run := r.At(now); v != 90 || run {
		t.Fatalf("snap = %d,%v", v, run)
	}
}
