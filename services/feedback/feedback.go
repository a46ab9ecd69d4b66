// Package feedback maps key events to LED effects and buzzer tones.
//
// Levels and frequencies are computed here; the Strip and Tone outputs are
// supplied by the board.
package feedback

import (
	"image/color"
	"sync"
	"time"

	"calcpad-go/bus"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

var (
	topicConfigLED    = bus.T("config", "led")
	topicConfigBuzzer = bus.T("config", "buzzer")
)

const comboBreath = 1000 * time.Millisecond

// Engine is driven from the keypad task: HandleKeyEvent per event and
// Update once per cycle. Other goroutines may call Stop and Test.
type Engine struct {
	log logx.Logger

	mu   sync.Mutex
	leds *LEDs
	buzz *Buzzer
	subs []*bus.Subscription
}

func NewEngine(strip Strip, tone Tone, led types.LEDSettings, buzzer types.BuzzerSettings, log logx.Logger) *Engine {
	if log == nil {
		log = logx.Nop()
	}
	return &Engine{
		log:  log,
		leds: newLEDs(strip, led),
		buzz: newBuzzer(tone, buzzer),
	}
}

// Attach subscribes to LED and buzzer settings; Update applies them.
func (e *Engine) Attach(conn *bus.Connection) {
	e.subs = append(e.subs, conn.Subscribe(topicConfigLED), conn.Subscribe(topicConfigBuzzer))
}

func (e *Engine) HandleKeyEvent(ev types.KeyEvent, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case types.KeyPress:
		mode := e.leds.cfg.Mode
		e.leds.start(ev.Key, mode, e.leds.durationFor(mode), now)
	case types.KeyLongPress:
		e.leds.start(ev.Key, types.LEDBlink, blinkTwice, now)
	case types.KeyRepeat:
		e.leds.start(ev.Key, types.LEDInstant, instantOn, now)
	case types.KeyCombo:
		for _, k := range ev.Keys() {
			e.leds.start(k, types.LEDBreath, comboBreath, now)
		}
	}
	e.buzz.onKey(ev, now)
}

// Update advances LED effects and ends finished tones.
func (e *Engine) Update(now time.Time) {
	for _, s := range e.subs {
		s.Poll(e.apply)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leds.Frame(now)
	e.buzz.update(now)
}

func (e *Engine) apply(msg *bus.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch s := msg.Payload.(type) {
	case types.LEDSettings:
		e.leds.configure(s)
		e.log.Debug("led settings applied", "mode", string(s.Mode), "brightness", s.Brightness)
	case types.BuzzerSettings:
		e.buzz.configure(s)
		e.log.Debug("buzzer settings applied", "mode", string(s.Mode), "volume", s.Volume)
	}
}

// Stop ends every LED effect and silences the buzzer.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leds.clear()
	e.buzz.stop()
}

// Test plays the press tone regardless of FollowKeypress.
func (e *Engine) Test(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buzz.Start(e.buzz.cfg.PressHz, 200*time.Millisecond, now)
}

// Playing returns the current tone, 0 when silent.
func (e *Engine) Playing() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buzz.hz
}

// Frame returns a copy of the last rendered LED frame.
func (e *Engine) Frame() []color.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]color.RGBA(nil), e.leds.shown[:]...)
}

func (e *Engine) LEDActive(key types.LogicalKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leds.Active(key)
}
