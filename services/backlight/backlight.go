// Package backlight fades the LCD backlight between percent targets.
package backlight

import (
	"sync"
	"time"

	"calcpad-go/bus"
	"calcpad-go/types"
	"calcpad-go/x/mathx"
	"calcpad-go/x/ramp"
	"calcpad-go/x/timex"
)

const DefaultFade = 500 * time.Millisecond

var topicConfigBacklight = bus.T("config", "backlight")

// Output drives the backlight, 0 (off) to 255 (full).
type Output interface {
	SetLevel(level uint8)
}

// Controller is updated from the display task. SetPercent may be called
// from any goroutine.
type Controller struct {
	out Output
	sub *bus.Subscription

	mu      sync.Mutex
	ramp    ramp.Linear
	level   uint8
	percent uint8
	fade    time.Duration
	saved   uint8
	dimmed  bool

	// a fade requested since the last Update
	pending     bool
	pendingTo   uint8
	pendingFade time.Duration
}

func New(out Output) *Controller {
	return &Controller{out: out, fade: DefaultFade}
}

// Attach subscribes to backlight settings; Update applies them.
func (c *Controller) Attach(conn *bus.Connection) {
	c.sub = conn.Subscribe(topicConfigBacklight)
}

// SetPercent starts a linear fade from the current level to p percent.
// A non-positive fade uses the configured default.
func (c *Controller) SetPercent(p uint8, fade time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(mathx.Clamp(p, 0, 100), fade)
}

func (c *Controller) setLocked(p uint8, fade time.Duration) {
	if fade <= 0 {
		fade = c.fade
	}
	c.percent = p
	c.pending = true
	c.pendingTo = mathx.PercentToLevel(p)
	c.pendingFade = fade
}

// Update advances the fade and reports whether the output level changed.
func (c *Controller) Update(now time.Time) bool {
	if c.sub != nil {
		c.sub.Poll(c.applyConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		c.ramp.Start(c.level, c.pendingTo, c.pendingFade, now)
		c.pending = false
	}
	v, _ := c.ramp.At(now)
	if v == c.level {
		return false
	}
	c.level = v
	if c.out != nil {
		c.out.SetLevel(v)
	}
	return true
}

func (c *Controller) applyConfig(msg *bus.Message) {
	s, ok := msg.Payload.(types.BacklightSettings)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.FadeMs > 0 {
		c.fade = timex.Ms(s.FadeMs)
	}
	if c.dimmed {
		c.saved = mathx.Clamp(s.Percent, 0, 100)
		return
	}
	c.setLocked(mathx.Clamp(s.Percent, 0, 100), 0)
}

// Dim fades to off and remembers the current target for Restore.
func (c *Controller) Dim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimmed {
		return
	}
	c.saved = c.percent
	c.dimmed = true
	c.setLocked(0, 0)
}

// Restore returns to the level saved by Dim.
func (c *Controller) Restore() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dimmed {
		return
	}
	c.dimmed = false
	c.setLocked(c.saved, 0)
}

func (c *Controller) Level() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

func (c *Controller) Target() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return c.pendingTo
	}
	return c.ramp.Target()
}

func (c *Controller) Percent() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.percent
}
