// Package display is the display task: it forwards key events and display
// updates to the application collaborator and keeps the GUI clock and the
// backlight fade moving.
package display

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/pool"
	"calcpad-go/x/queue"
)

// TopicKeyEvent carries every consumed key event (not retained).
var TopicKeyEvent = bus.T("keypad", "event")

// App is the calculator/UI collaborator.
type App interface {
	HandleKeyEvent(ev types.KeyEvent)
	HandleDisplayUpdate(u types.DisplayUpdate)
	Refresh(now time.Time)
}

// GUITicker advances the GUI toolkit's timers.
type GUITicker interface {
	Tick(now time.Time)
}

// TickerFunc adapts a function to GUITicker.
type TickerFunc func(now time.Time)

func (f TickerFunc) Tick(now time.Time) { f(now) }

// Fader is the backlight as seen from this task.
type Fader interface {
	Update(now time.Time) bool
}

type Options struct {
	Keys    *queue.Queue[types.KeyEvent]
	Updates *queue.Queue[pool.Handle]
	Pool    *pool.Pool[types.DisplayUpdate]

	App       App
	GUI       GUITicker // optional
	Backlight Fader     // optional
	Conn      *bus.Connection

	Clock clockwork.Clock
	Log   logx.Logger
}

type Service struct {
	keys    *queue.Queue[types.KeyEvent]
	updates *queue.Queue[pool.Handle]
	pool    *pool.Pool[types.DisplayUpdate]
	app     App
	gui     GUITicker
	fader   Fader
	conn    *bus.Connection
	clock   clockwork.Clock
	log     logx.Logger

	keyCount    atomic.Uint32
	updateCount atomic.Uint32
	stale       atomic.Uint32
}

func New(o Options) (*Service, error) {
	if o.Keys == nil || o.Updates == nil || o.Pool == nil || o.App == nil {
		return nil, errcode.New(errcode.InvalidParams, "display.New", "queues, pool and app are required")
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = logx.Nop()
	}
	return &Service{
		keys:    o.Keys,
		updates: o.Updates,
		pool:    o.Pool,
		app:     o.App,
		gui:     o.GUI,
		fader:   o.Backlight,
		conn:    o.Conn,
		clock:   o.Clock,
		log:     o.Log,
	}, nil
}

// Cycle is the task body. Key events are drained before display updates;
// each drain takes at most the queue's capacity so a busy producer cannot
// hold the task.
func (s *Service) Cycle(_ context.Context, _ uint32) error {
	for i := s.keys.Cap(); i > 0; i-- {
		ev, ok := s.keys.TryReceive()
		if !ok {
			break
		}
		s.keyCount.Add(1)
		s.app.HandleKeyEvent(ev)
		if s.conn != nil {
			s.conn.Publish(s.conn.NewMessage(TopicKeyEvent, ev, false))
		}
	}

	var firstErr error
	for i := s.updates.Cap(); i > 0; i-- {
		h, ok := s.updates.TryReceive()
		if !ok {
			break
		}
		slot := s.pool.Get(h)
		if slot == nil {
			s.stale.Add(1)
			if firstErr == nil {
				firstErr = errcode.New(errcode.StaleHandle, "display.Cycle", "update slot already released")
			}
			continue
		}
		u := *slot
		if err := s.pool.Release(h); err != nil && firstErr == nil {
			firstErr = err
		}
		s.updateCount.Add(1)
		s.app.HandleDisplayUpdate(u)
	}

	now := s.clock.Now()
	s.app.Refresh(now)
	if s.gui != nil {
		s.gui.Tick(now)
	}
	if s.fader != nil {
		s.fader.Update(now)
	}
	return firstErr
}

// KeyEvents and Updates count forwarded items; Stale counts handles whose
// slot was gone.
func (s *Service) KeyEvents() uint32 { return s.keyCount.Load() }
func (s *Service) Updates() uint32   { return s.updateCount.Load() }
func (s *Service) Stale() uint32     { return s.stale.Load() }
