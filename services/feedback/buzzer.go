package feedback

import (
	"time"

	"calcpad-go/types"
	"calcpad-go/x/mathx"
	"calcpad-go/x/timex"
)

// Tone drives the buzzer. duty is 0..255; 0 is silent.
type Tone interface {
	Play(hz uint16, duty uint8)
	Stop()
}

var volumeDuty = [...]uint8{
	types.VolumeMute:   0,
	types.VolumeLow:    85,
	types.VolumeMedium: 127,
	types.VolumeHigh:   255,
}

// pianoHz is C4..A5, one semitone per key.
var pianoHz = [types.NumKeys]uint16{
	262, 277, 294, 311, 330, 349, 370, 392, 415, 440, 466,
	494, 523, 554, 587, 622, 659, 698, 740, 784, 831, 880,
}

// PianoHz returns the piano-mode tone for key.
func PianoHz(key types.LogicalKey) (uint16, bool) {
	if !key.Valid() {
		return 0, false
	}
	return pianoHz[key-1], true
}

// VolumeDuty maps a volume step to a PWM duty.
func VolumeDuty(v uint8) uint8 {
	return volumeDuty[mathx.Clamp(v, types.VolumeMute, types.VolumeHigh)]
}

// Buzzer plays one tone at a time and stops it when its time is up.
type Buzzer struct {
	tone    Tone
	cfg     types.BuzzerSettings
	playing bool
	hz      uint16
	until   time.Time
}

func newBuzzer(t Tone, cfg types.BuzzerSettings) *Buzzer {
	return &Buzzer{tone: t, cfg: cfg}
}

func (b *Buzzer) configure(cfg types.BuzzerSettings) {
	b.cfg = cfg
	if !cfg.Enabled {
		b.stop()
	}
}

// Start plays hz for d. A new tone replaces the current one.
func (b *Buzzer) Start(hz uint16, d time.Duration, now time.Time) {
	duty := VolumeDuty(b.cfg.Volume)
	if !b.cfg.Enabled || hz == 0 || d <= 0 || duty == 0 {
		return
	}
	if b.tone != nil {
		b.tone.Play(hz, duty)
	}
	b.playing = true
	b.hz = hz
	b.until = now.Add(d)
}

func (b *Buzzer) update(now time.Time) {
	if b.playing && !now.Before(b.until) {
		b.stop()
	}
}

func (b *Buzzer) stop() {
	if !b.playing {
		return
	}
	b.playing = false
	b.hz = 0
	if b.tone != nil {
		b.tone.Stop()
	}
}

// keyTone is the press tone for key under the current mode.
func (b *Buzzer) keyTone(key types.LogicalKey) uint16 {
	if b.cfg.Mode == types.BuzzerPiano {
		if hz, ok := PianoHz(key); ok {
			return hz
		}
	}
	return b.cfg.PressHz
}

func (b *Buzzer) onKey(ev types.KeyEvent, now time.Time) {
	if !b.cfg.Enabled || !b.cfg.FollowKeypress {
		return
	}
	hz := b.keyTone(ev.Key)
	d := timex.Ms(b.cfg.DurationMs)
	switch ev.Type {
	case types.KeyPress:
		b.Start(hz, d, now)
	case types.KeyRelease:
		if !b.cfg.DualTone {
			return
		}
		rel := b.cfg.ReleaseHz
		if b.cfg.Mode == types.BuzzerPiano {
			rel = uint16(uint32(hz) * 4 / 5)
		}
		b.Start(rel, d, now)
	case types.KeyLongPress:
		b.Start(uint16(uint32(hz)*6/5), d*3/2, now)
	case types.KeyRepeat:
		b.Start(hz, d/2, now)
	}
}
