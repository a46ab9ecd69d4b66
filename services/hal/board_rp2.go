//go:build rp2040 || rp2350

package hal

import (
	"context"
	"io"
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers/tone"

	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/services/bridge"
	"calcpad-go/services/feedback"
	"calcpad-go/services/system"
	"calcpad-go/services/watchdog"
	"calcpad-go/types"
	"calcpad-go/x/shmring"
	"calcpad-go/x/timex"
)

const backlightHz = 1000

// Select controller handle for a given slice number (0..7).
func pwmGroupBySlice(slice int) tone.PWM {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

// pwmBacklight dims the LCD backlight through one PWM channel.
type pwmBacklight struct {
	ctrl tone.PWM
	ch   uint8
}

func newPWMBacklight(pin machine.Pin) (*pwmBacklight, error) {
	ctrl := pwmGroupBySlice(pwmSlice(int(pin)))
	if err := ctrl.Configure(machine.PWMConfig{Period: timex.PeriodFromHz(backlightHz)}); err != nil {
		return nil, err
	}
	ch, err := ctrl.Channel(pin)
	if err != nil {
		return nil, err
	}
	return &pwmBacklight{ctrl: ctrl, ch: ch}, nil
}

func (b *pwmBacklight) SetLevel(level uint8) {
	b.ctrl.Set(b.ch, b.ctrl.Top()*uint32(level)/255)
}

func uartByID(id string) *uartx.UART {
	if id == "uart1" {
		return uartx.UART1
	}
	return uartx.UART0
}

func parityOf(p types.Parity) uartx.UARTParity {
	switch p {
	case types.ParityEven:
		return uartx.ParityEven
	case types.ParityOdd:
		return uartx.ParityOdd
	}
	return uartx.ParityNone
}

// Pico builds the calculator board from a pin plan.
func Pico(plan PinPlan, serial types.SerialConfig) (*Board, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if serial.Baud == 0 {
		serial.Baud = plan.UART.Baud
	}

	scanner, err := keymatrix.New(keymatrix.MachinePins(
		machine.Pin(plan.Load), machine.Pin(plan.Clock),
		machine.Pin(plan.Enable), machine.Pin(plan.Data)), keymatrix.Spin)
	if err != nil {
		return nil, err
	}
	scanner.Configure()

	buzzerPin := machine.Pin(plan.Buzzer)
	spk, err := feedback.NewSpeaker(pwmGroupBySlice(pwmSlice(plan.Buzzer)), buzzerPin)
	if err != nil {
		return nil, errcode.Wrap(errcode.Error, "hal.Pico: buzzer", err)
	}

	bl, err := newPWMBacklight(machine.Pin(plan.Backlight))
	if err != nil {
		return nil, errcode.Wrap(errcode.Error, "hal.Pico: backlight", err)
	}

	u := uartByID(plan.UART.ID)
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: serial.Baud,
		TX:       machine.Pin(plan.UART.TX),
		RX:       machine.Pin(plan.UART.RX),
	}); err != nil {
		return nil, errcode.Wrap(errcode.Error, "hal.Pico: uart", err)
	}
	if serial.DataBits != 0 {
		if err := u.SetFormat(serial.DataBits, serial.StopBits, parityOf(serial.Parity)); err != nil {
			return nil, errcode.Wrap(errcode.InvalidParams, "hal.Pico: uart format", err)
		}
	}

	return &Board{
		Name:      "pico",
		Port:      scanner,
		Strip:     feedback.NewWS2812(machine.Pin(plan.LED)),
		Tone:      spk,
		Backlight: bl,
		Watchdog:  watchdog.Machine(),
		Probe:     system.RuntimeProbe{},
		Out:       u,
		Reader:    func(ctx context.Context, ring *shmring.Ring) error { return uartReader(ctx, u, ring) },
		Serial:    serial,
		Reset:     resetCPU,
	}, nil
}

// uartReader waits for the receive edge and drains the UART into ring.
func uartReader(ctx context.Context, u *uartx.UART, ring *shmring.Ring) error {
	var buf [64]byte
	drain := func() {
		for {
			n := u.TryRead(buf[:])
			if n <= 0 {
				return
			}
			ring.WriteFrom(buf[:n])
		}
	}
	drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-u.Readable():
			drain()
		}
	}
}

// resetCPU lets the watchdog expire with the shortest timeout.
func resetCPU() {
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	_ = machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}

// uartLink is a bridge byte stream over a UART. Reads stop with the dial
// context.
type uartLink struct {
	ctx context.Context
	u   *uartx.UART
}

func (l uartLink) Read(p []byte) (int, error)  { return l.u.RecvSomeContext(l.ctx, p) }
func (l uartLink) Write(p []byte) (int, error) { return l.u.Write(p) }
func (l uartLink) Close() error                { return nil }

// LinkDialer opens the plan's link UART for the bridge. Non-zero fields of
// the bridge config override the plan.
func LinkDialer(plan PinPlan) func(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
	return func(ctx context.Context, c bridge.UARTConfig) (io.ReadWriteCloser, error) {
		if plan.Link.ID == "" {
			return nil, errcode.New(errcode.Unsupported, "hal.LinkDialer", "no link UART on this board")
		}
		tx, rx, baud := plan.Link.TX, plan.Link.RX, plan.Link.Baud
		if c.TxPin != 0 || c.RxPin != 0 {
			tx, rx = c.TxPin, c.RxPin
		}
		if c.Baud > 0 {
			baud = uint32(c.Baud)
		}
		u := uartByID(plan.Link.ID)
		if err := u.Configure(uartx.UARTConfig{BaudRate: baud, TX: machine.Pin(tx), RX: machine.Pin(rx)}); err != nil {
			return nil, errcode.Wrap(errcode.Error, "hal.LinkDialer", err)
		}
		return uartLink{ctx: ctx, u: u}, nil
	}
}
