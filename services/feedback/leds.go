package feedback

import (
	"image/color"
	"math"
	"time"

	"calcpad-go/types"
	"calcpad-go/x/mathx"
	"calcpad-go/x/timex"
)

// NumLEDs is one LED under each key.
const NumLEDs = types.NumKeys

const (
	instantOn    = 50 * time.Millisecond
	breathPeriod = 1000 * time.Millisecond
	blinkHalf    = 200 * time.Millisecond
	blinkTwice   = 4 * blinkHalf
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Strip accepts one full frame of colours.
type Strip interface {
	WriteColors(frame []color.RGBA) error
}

type effect struct {
	mode   types.LEDMode
	color  color.RGBA
	start  time.Time
	dur    time.Duration
	active bool
}

// LEDs renders per-key effects into a reusable frame.
type LEDs struct {
	strip Strip
	cfg   types.LEDSettings
	fx    [NumLEDs]effect
	frame [NumLEDs]color.RGBA
	shown [NumLEDs]color.RGBA
	wrote bool
	errs  uint32
}

func newLEDs(strip Strip, cfg types.LEDSettings) *LEDs {
	return &LEDs{strip: strip, cfg: cfg}
}

func (l *LEDs) configure(cfg types.LEDSettings) {
	if !cfg.Mode.Valid() {
		cfg.Mode = l.cfg.Mode
	}
	l.cfg = cfg
	if !cfg.Enabled {
		l.clear()
	}
}

// durationFor is how long one effect of mode lasts.
func (l *LEDs) durationFor(mode types.LEDMode) time.Duration {
	switch mode {
	case types.LEDInstant:
		return instantOn
	case types.LEDBreath:
		return breathPeriod
	case types.LEDBlink:
		return blinkTwice
	default:
		if l.cfg.FadeMs == 0 {
			return 500 * time.Millisecond
		}
		return timex.Ms(l.cfg.FadeMs)
	}
}

func (l *LEDs) start(key types.LogicalKey, mode types.LEDMode, dur time.Duration, now time.Time) {
	if !l.cfg.Enabled || !key.Valid() {
		return
	}
	l.fx[key-1] = effect{mode: mode, color: white, start: now, dur: dur, active: true}
}

func (l *LEDs) clear() {
	for i := range l.fx {
		l.fx[i].active = false
	}
}

// intensity is the effect level at now, 0..255.
func intensity(e *effect, now time.Time) uint8 {
	el := now.Sub(e.start)
	if el < 0 {
		el = 0
	}
	if el >= e.dur {
		e.active = false
		return 0
	}
	switch e.mode {
	case types.LEDInstant:
		return 255
	case types.LEDBreath:
		p := float64(el%breathPeriod) / float64(breathPeriod)
		return uint8(math.Sin(p*math.Pi) * 255)
	case types.LEDBlink:
		if (el/blinkHalf)%2 == 0 {
			return 255
		}
		return 0
	default:
		return mathx.Lerp8(255, 0, int64(el), int64(e.dur))
	}
}

func scale(c color.RGBA, v uint8) color.RGBA {
	return color.RGBA{R: mathx.Scale8(c.R, v), G: mathx.Scale8(c.G, v), B: mathx.Scale8(c.B, v), A: 255}
}

// Frame renders every LED at now and writes the strip when the frame
// differs from what is shown. It reports whether the strip was written.
func (l *LEDs) Frame(now time.Time) ([]color.RGBA, bool) {
	for i := range l.fx {
		e := &l.fx[i]
		if !e.active {
			l.frame[i] = color.RGBA{}
			continue
		}
		v := mathx.Scale8(intensity(e, now), l.cfg.Brightness)
		l.frame[i] = scale(e.color, v)
		if v == 0 {
			l.frame[i] = color.RGBA{}
		}
	}
	if l.wrote && l.frame == l.shown {
		return l.frame[:], false
	}
	if l.strip != nil {
		if err := l.strip.WriteColors(l.frame[:]); err != nil {
			l.errs++
			return l.frame[:], false
		}
	}
	l.shown = l.frame
	l.wrote = true
	return l.frame[:], true
}

// Active reports whether key has a running effect.
func (l *LEDs) Active(key types.LogicalKey) bool {
	return key.Valid() && l.fx[key-1].active
}
