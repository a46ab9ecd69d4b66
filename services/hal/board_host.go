//go:build !(rp2040 || rp2350)

package hal

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"periph.io/x/host/v3"

	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/services/console"
	"calcpad-go/services/feedback"
	"calcpad-go/services/keypad"
	"calcpad-go/services/system"
	"calcpad-go/services/watchdog"
	"calcpad-go/types"
	"calcpad-go/x/shmring"
)

// ResetExitCode is the process status used when the host reset hook fires.
const ResetExitCode = 3

// LevelRecorder is a backlight output that remembers what it was given.
type LevelRecorder struct {
	mu     sync.Mutex
	levels []uint8
}

func (r *LevelRecorder) SetLevel(l uint8) {
	r.mu.Lock()
	r.levels = append(r.levels, l)
	r.mu.Unlock()
}

// Level is the last level set, 0 before any.
func (r *LevelRecorder) Level() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.levels) == 0 {
		return 0
	}
	return r.levels[len(r.levels)-1]
}

func (r *LevelRecorder) History() []uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint8(nil), r.levels...)
}

// SimOptions configure the simulated board. Zero values pick stdin,
// stdout, the real clock and an exiting reset hook.
type SimOptions struct {
	In    io.Reader
	Out   io.Writer
	Clock clockwork.Clock
	Reset func()
}

// SimBoard keeps typed handles on the simulated devices.
type SimBoard struct {
	*Board
	Keys      *keymatrix.SimPort
	LEDs      *feedback.MemoryStrip
	Buzzer    *feedback.MemoryTone
	Light     *LevelRecorder
	SoftWatch *watchdog.SoftWatchdog
}

// Sim builds a host board with every device simulated.
func Sim(o SimOptions) *SimBoard {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Reset == nil {
		o.Reset = func() { os.Exit(ResetExitCode) }
	}
	sb := &SimBoard{
		Keys:   keymatrix.NewSimPort(keypad.DefaultPositions),
		LEDs:   &feedback.MemoryStrip{},
		Buzzer: &feedback.MemoryTone{},
		Light:  &LevelRecorder{},
	}
	sb.SoftWatch = watchdog.NewSoftWatchdog(o.Clock, o.Reset)
	in := o.In
	sb.Board = &Board{
		Name:      "sim",
		Port:      sb.Keys,
		Strip:     sb.LEDs,
		Tone:      sb.Buzzer,
		Backlight: sb.Light,
		Watchdog:  sb.SoftWatch,
		Probe:     system.RuntimeProbe{},
		Out:       o.Out,
		Reader: func(ctx context.Context, ring *shmring.Ring) error {
			return console.Pump(ctx, in, ring)
		},
		Serial: types.DefaultSerial(),
		Reset:  o.Reset,
	}
	return sb
}

// Linux is the simulated board with the key matrix read through real GPIO
// lines on a single-board computer.
func Linux(names keymatrix.PinNames, o SimOptions) (*SimBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "hal.Linux", err)
	}
	pins, err := keymatrix.PeriphPinsByName(names)
	if err != nil {
		return nil, err
	}
	scanner, err := keymatrix.New(pins, keymatrix.Spin)
	if err != nil {
		return nil, err
	}
	scanner.Configure()
	sb := Sim(o)
	sb.Name = "linux"
	sb.Port = scanner
	return sb, nil
}
