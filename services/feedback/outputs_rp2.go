//go:build rp2040 || rp2350

package feedback

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/tone"
	"tinygo.org/x/drivers/ws2812"

	"calcpad-go/x/timex"
)

type ws2812Strip struct{ dev ws2812.Device }

// NewWS2812 drives a WS2812 chain on pin.
func NewWS2812(pin machine.Pin) Strip {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &ws2812Strip{dev: ws2812.New(pin)}
}

func (s *ws2812Strip) WriteColors(frame []color.RGBA) error { return s.dev.WriteColors(frame) }

// speaker adapts tone.Speaker. The driver always runs at 50% duty, so any
// non-zero volume sounds at the same level.
type speaker struct{ s tone.Speaker }

// NewSpeaker drives a passive buzzer from a PWM slice.
func NewSpeaker(pwm tone.PWM, pin machine.Pin) (Tone, error) {
	s, err := tone.New(pwm, pin)
	if err != nil {
		return nil, err
	}
	s.Stop()
	return &speaker{s: s}, nil
}

func (p *speaker) Play(hz uint16, duty uint8) {
	if duty == 0 || hz == 0 {
		p.s.Stop()
		return
	}
	p.s.SetNote(tone.Note(timex.PeriodFromHz(uint32(hz))))
}

func (p *speaker) Stop() { p.s.Stop() }
