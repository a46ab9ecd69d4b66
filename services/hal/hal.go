// Package hal assembles a board: the concrete devices behind the
// firmware's keypad, feedback, backlight, watchdog and console interfaces.
package hal

import (
	"context"
	"io"

	"calcpad-go/errcode"
	"calcpad-go/services/backlight"
	"calcpad-go/services/feedback"
	"calcpad-go/services/keypad"
	"calcpad-go/services/system"
	"calcpad-go/services/watchdog"
	"calcpad-go/types"
	"calcpad-go/x/shmring"
)

// Board bundles one target's devices. Optional fields may be nil.
type Board struct {
	Name string

	Port      keypad.Port
	Strip     feedback.Strip
	Tone      feedback.Tone
	Backlight backlight.Output
	Watchdog  watchdog.Hardware
	Probe     system.ResourceProbe

	// Console output, and the producer that fills the console ring.
	Out    io.Writer
	Reader func(ctx context.Context, ring *shmring.Ring) error
	Serial types.SerialConfig

	// Reset restarts the device (or the process on host).
	Reset func()
}

// UARTPlan places the console UART.
type UARTPlan struct {
	ID   string
	TX   int
	RX   int
	Baud uint32
}

// PinPlan is the GPIO assignment of a board.
type PinPlan struct {
	Load, Clock, Enable, Data int      // shift-register chain
	LED                       int      // WS2812 data
	Buzzer                    int      // PWM
	Backlight                 int      // PWM, must not share a slice with Buzzer
	UART                      UARTPlan // console
	Link                      UARTPlan // bridge, optional
}

// PicoPlan is the calculator main board on a Raspberry Pi Pico.
var PicoPlan = PinPlan{
	Load: 2, Clock: 3, Enable: 4, Data: 5,
	LED:       16,
	Buzzer:    15,
	Backlight: 13,
	UART:      UARTPlan{ID: "uart0", TX: 0, RX: 1, Baud: 115_200},
	Link:      UARTPlan{ID: "uart1", TX: 8, RX: 9, Baud: 115_200},
}

// pwmSlice returns the RP2 PWM slice that drives a GPIO.
func pwmSlice(pin int) int { return (pin >> 1) & 7 }

var (
	errSharedSlice = errcode.New(errcode.InvalidParams, "hal.PinPlan", "buzzer and backlight share a PWM slice")
	errSharedUART  = errcode.New(errcode.InvalidParams, "hal.PinPlan", "console and link use the same UART")
)

// Validate reports a plan whose buzzer and backlight share a PWM slice
// (the two need different periods) or whose link reuses the console UART.
func (p PinPlan) Validate() error {
	if pwmSlice(p.Buzzer) == pwmSlice(p.Backlight) {
		return errSharedSlice
	}
	if p.Link.ID != "" && p.Link.ID == p.UART.ID {
		return errSharedUART
	}
	return nil
}
