//go:build rp2040 || rp2350

// Command boardtest cycles every output on a calculator board and checks
// the key matrix and the bridge UART. Jumper link TX to RX for the
// loopback step.
package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"time"

	"calcpad-go/errcode"
	"calcpad-go/services/bridge"
	"calcpad-go/services/feedback"
	"calcpad-go/services/hal"
	"calcpad-go/services/keypad"
	"calcpad-go/types"
)

// ---------- Configuration ----------

const (
	// Sequencing timing
	stepDelay = 300 * time.Millisecond
	dwell     = time.Second

	loopbackTimeout = 500 * time.Millisecond

	// Cycles: 0 = loop forever
	cyclesToRun = 0
)

var backlightSteps = []uint8{0, 64, 128, 192, 255}

var ledColors = []color.RGBA{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 255, B: 255, A: 255},
}

var notes = []uint16{523, 659, 784, 1047}

// ---------- Output ----------

type out struct{ w io.Writer }

func (o out) println(a ...any) { fmt.Fprintln(o.w, a...) }

func (o out) printf(format string, a ...any) { fmt.Fprintf(o.w, format, a...) }

// ---------- Steps ----------

func fill(s feedback.Strip, c color.RGBA) error {
	frame := make([]color.RGBA, feedback.NumLEDs)
	for i := range frame {
		frame[i] = c
	}
	return s.WriteColors(frame)
}

func flashPassFail(s feedback.Strip, pass bool) {
	if s == nil {
		return
	}
	c := color.RGBA{G: 255, A: 255}
	if !pass {
		c = color.RGBA{R: 255, A: 255}
	}
	_ = fill(s, c)
	time.Sleep(400 * time.Millisecond)
	_ = fill(s, color.RGBA{})
}

// checkKeys reads the matrix once. An all-low word means the chain is
// not clocking.
func checkKeys(b *hal.Board, o out) bool {
	raw := b.Port.ReadMatrix()
	held := make([]types.LogicalKey, 0, types.NumKeys)
	for k := types.LogicalKey(1); k <= types.NumKeys; k++ {
		if keypad.DefaultPositions.Pressed(raw, k) {
			held = append(held, k)
		}
	}
	o.printf("keys: raw=%#08x held=%v\n", raw, held)
	return raw != 0
}

// loopback sends a frame out of the link UART and expects it back.
func loopback(dial func(context.Context, bridge.UARTConfig) (io.ReadWriteCloser, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), loopbackTimeout)
	defer cancel()
	rw, err := dial(ctx, bridge.UARTConfig{})
	if err != nil {
		return err
	}
	defer rw.Close()

	if err := bridge.Send(rw, "boardtest", "ping"); err != nil {
		return err
	}
	got := false
	_ = bridge.ReadFrames(ctx, rw, func(e bridge.Envelope) {
		if e.Topic == "boardtest" {
			got = true
			cancel()
		}
	})
	if !got {
		return errcode.New(errcode.Error, "boardtest.loopback", "no echo within "+loopbackTimeout.String())
	}
	return nil
}

// ---------- Main ----------

func main() {
	println("[boardtest] boot …")
	time.Sleep(1500 * time.Millisecond)

	board, err := hal.Pico(hal.PicoPlan, types.DefaultSerial())
	if err != nil {
		println("[boardtest] board init failed:", err.Error())
		for {
			time.Sleep(time.Second)
		}
	}
	o := out{w: board.Out}
	dial := hal.LinkDialer(hal.PicoPlan)

	cycle := 0
	for {
		cycle++
		o.println("=== boardtest: cycle", cycle, "===")
		fails := make([]string, 0, 3)

		for _, l := range backlightSteps {
			board.Backlight.SetLevel(l)
			o.println("backlight:", l)
			time.Sleep(stepDelay)
		}
		board.Backlight.SetLevel(0)

		for _, c := range ledColors {
			if err := fill(board.Strip, c); err != nil {
				fails = append(fails, "leds")
				break
			}
			o.printf("leds: %02x%02x%02x\n", c.R, c.G, c.B)
			time.Sleep(stepDelay)
		}
		_ = fill(board.Strip, color.RGBA{})

		for _, hz := range notes {
			board.Tone.Play(hz, 127)
			o.println("buzzer:", hz, "Hz")
			time.Sleep(stepDelay)
		}
		board.Tone.Stop()
		time.Sleep(dwell)

		if !checkKeys(board, o) {
			fails = append(fails, "keys")
		}
		if err := loopback(dial); err != nil {
			o.println("link:", err.Error())
			fails = append(fails, "link")
		} else {
			o.println("link: echo ok")
		}

		pass := len(fails) == 0
		if pass {
			o.println("[PASS] outputs cycled; matrix and link answered")
		} else {
			o.println("[FAIL]", fmt.Sprintf("%v", fails))
		}
		flashPassFail(board.Strip, pass)

		if cyclesToRun > 0 && cycle >= cyclesToRun {
			o.println("completed", cycle, "cycles; halting")
			return
		}
		time.Sleep(dwell)
	}
}
