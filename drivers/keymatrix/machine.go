//go:build rp2040 || rp2350

package keymatrix

import "machine"

type pinOut machine.Pin

func (p pinOut) Set(high bool) { machine.Pin(p).Set(high) }

type pinIn machine.Pin

func (p pinIn) Get() bool { return machine.Pin(p).Get() }

// MachinePins configures RP2 GPIOs for the register chain.
func MachinePins(load, clock, enable, data machine.Pin) Pins {
	for _, p := range []machine.Pin{load, clock, enable} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	data.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	enable.Low()
	load.High()
	clock.Low()
	return Pins{
		Load:   pinOut(load),
		Clock:  pinOut(clock),
		Enable: pinOut(enable),
		Data:   pinIn(data),
	}
}
