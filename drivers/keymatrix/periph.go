//go:build !(rp2040 || rp2350)

package keymatrix

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"calcpad-go/errcode"
)

type periphOut struct{ p gpio.PinOut }

func (o periphOut) Set(high bool) { _ = o.p.Out(gpio.Level(high)) }

type periphIn struct{ p gpio.PinIn }

func (i periphIn) Get() bool { return i.p.Read() == gpio.High }

// PinNames are periph registry names, e.g. "GPIO17".
type PinNames struct {
	Load, Clock, Enable, Data string
}

// PeriphPins wraps periph.io lines. Outputs start at their idle levels and
// the data line is an input with pull-up.
func PeriphPins(load, clock, enable gpio.PinOut, data gpio.PinIn) (Pins, error) {
	const op = "keymatrix.PeriphPins"
	if err := enable.Out(gpio.Low); err != nil {
		return Pins{}, errcode.Wrap(errcode.Error, op, err)
	}
	if err := load.Out(gpio.High); err != nil {
		return Pins{}, errcode.Wrap(errcode.Error, op, err)
	}
	if err := clock.Out(gpio.Low); err != nil {
		return Pins{}, errcode.Wrap(errcode.Error, op, err)
	}
	if err := data.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return Pins{}, errcode.Wrap(errcode.Error, op, err)
	}
	return Pins{
		Load:   periphOut{load},
		Clock:  periphOut{clock},
		Enable: periphOut{enable},
		Data:   periphIn{data},
	}, nil
}

// PeriphPinsByName looks lines up in the periph GPIO registry. The host
// drivers must already be initialised (host.Init).
func PeriphPinsByName(n PinNames) (Pins, error) {
	var ps [4]gpio.PinIO
	for i, name := range []string{n.Load, n.Clock, n.Enable, n.Data} {
		p := gpioreg.ByName(name)
		if p == nil {
			return Pins{}, errcode.New(errcode.NotFound, "keymatrix.PeriphPinsByName", name)
		}
		ps[i] = p
	}
	return PeriphPins(ps[0], ps[1], ps[2], ps[3])
}
