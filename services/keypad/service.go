package keypad

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/drivers/keymatrix"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/pool"
	"calcpad-go/x/queue"
)

var topicConfigKeypad = bus.T("config", "keypad")

// Port reads one raw scan word (active low, 24 bits).
type Port interface {
	ReadMatrix() uint32
}

// Feedback drives LEDs and buzzer from key events.
type Feedback interface {
	HandleKeyEvent(ev types.KeyEvent, now time.Time)
	Update(now time.Time)
}

type Options struct {
	Port      Port
	Positions Positions // zero value selects DefaultPositions
	Timing    Timing    // zero value selects DefaultTiming

	Events *queue.Queue[types.KeyEvent]
	Pool   *pool.Pool[types.KeyEvent]

	Feedback Feedback // optional
	Activity func()   // optional, called when input is seen
	Conn     *bus.Connection

	Clock clockwork.Clock
	Log   logx.Logger
}

// Service is the keypad task body.
type Service struct {
	port     Port
	cls      *Classifier
	events   *queue.Queue[types.KeyEvent]
	pool     *pool.Pool[types.KeyEvent]
	fb       Feedback
	activity func()
	clock    clockwork.Clock
	log      logx.Logger
	limit    *logx.Limiter

	conn   *bus.Connection
	cfgSub *bus.Subscription

	mu        sync.RWMutex
	listeners []func(types.KeyEvent)

	scratch []types.KeyEvent

	stopped      atomic.Bool
	drops        atomic.Uint32
	poolMisses   atomic.Uint32
	releaseFails atomic.Uint32
}

func New(o Options) (*Service, error) {
	if o.Port == nil || o.Events == nil {
		return nil, errcode.New(errcode.InvalidParams, "keypad.New", "port and event queue are required")
	}
	if o.Positions == (Positions{}) {
		o.Positions = DefaultPositions
	}
	if o.Timing == (Timing{}) {
		o.Timing = DefaultTiming()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = logx.Nop()
	}
	cls, err := NewClassifier(o.Positions, o.Timing)
	if err != nil {
		return nil, err
	}
	s := &Service{
		port:     o.Port,
		cls:      cls,
		events:   o.Events,
		pool:     o.Pool,
		fb:       o.Feedback,
		activity: o.Activity,
		clock:    o.Clock,
		log:      o.Log,
		limit:    logx.NewLimiter(time.Second),
		conn:     o.Conn,
		scratch:  make([]types.KeyEvent, 0, 2*types.NumKeys+1),
	}
	if s.conn != nil {
		s.cfgSub = s.conn.Subscribe(topicConfigKeypad)
	}
	return s, nil
}

func (s *Service) Classifier() *Classifier { return s.cls }

// OnKeyEvent registers a listener called synchronously, on the keypad
// task, for every event.
func (s *Service) OnKeyEvent(fn func(types.KeyEvent)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// ApplySettings updates timing and the auto-repeat key set.
func (s *Service) ApplySettings(ks types.KeypadSettings) error {
	if err := s.cls.SetTiming(s.cls.Timing().WithSettings(ks)); err != nil {
		return err
	}
	s.cls.SetAutoRepeatAll(false)
	for _, k := range ks.RepeatKeys {
		s.cls.SetAutoRepeat(types.LogicalKey(k), true)
	}
	return nil
}

// Cycle runs one scan. It is the scheduler body of the keypad task.
func (s *Service) Cycle(ctx context.Context, cycle uint32) error {
	if s.stopped.Load() {
		return nil
	}
	s.applyConfig()

	now := s.clock.Now()
	raw := s.port.ReadMatrix() & keymatrix.Mask
	s.scratch = s.cls.Update(raw, now, s.scratch[:0])

	// Debounced events are activity; raw glitches are not.
	if len(s.scratch) > 0 && s.activity != nil {
		s.activity()
	}
	for i := range s.scratch {
		s.dispatch(s.scratch[i], now)
	}
	if s.fb != nil {
		s.fb.Update(now)
	}
	return nil
}

func (s *Service) dispatch(ev types.KeyEvent, now time.Time) {
	h, staged := s.stage(ev, now)

	s.mu.RLock()
	for _, fn := range s.listeners {
		fn(ev)
	}
	s.mu.RUnlock()

	if !s.events.Send(ev, 0) {
		n := s.drops.Add(1)
		if ok, suppressed := s.limit.Allow("queue_full", now); ok {
			s.log.Warn(errcode.QueueFull, "key event dropped",
				"type", ev.Type.String(), "key", uint8(ev.Key), "drops", n, "suppressed", suppressed)
		}
	}
	if staged {
		s.release(h, now)
	}
}

// release returns a staging slot. A failed release leaks the slot for
// good, so it is counted and logged.
func (s *Service) release(h pool.Handle, now time.Time) {
	err := s.pool.Release(h)
	if err == nil {
		return
	}
	n := s.releaseFails.Add(1)
	if ok, suppressed := s.limit.Allow("release_failed", now); ok {
		s.log.Warn(err, "key event slot not returned", "failures", n, "suppressed", suppressed)
	}
}

// stage checks a pool slot out for ev and runs feedback from it. Feedback
// is skipped when the pool is exhausted.
func (s *Service) stage(ev types.KeyEvent, now time.Time) (pool.Handle, bool) {
	if s.pool == nil {
		if s.fb != nil {
			s.fb.HandleKeyEvent(ev, now)
		}
		return 0, false
	}
	h, ok := s.pool.Acquire()
	if !ok {
		s.poolMisses.Add(1)
		if ok, suppressed := s.limit.Allow("pool_exhausted", now); ok {
			s.log.Warn(errcode.PoolExhausted, "key event pool exhausted",
				"used", s.pool.UsedCount(), "suppressed", suppressed)
		}
		return 0, false
	}
	slot := s.pool.Get(h)
	*slot = ev
	if s.fb != nil {
		s.fb.HandleKeyEvent(*slot, now)
	}
	return h, true
}

func (s *Service) applyConfig() {
	if s.cfgSub == nil {
		return
	}
	s.cfgSub.Poll(func(msg *bus.Message) {
		ks, ok := msg.Payload.(types.KeypadSettings)
		if !ok {
			return
		}
		if err := s.ApplySettings(ks); err != nil {
			s.log.Warn(err, "keypad settings rejected")
			return
		}
		t := s.cls.Timing()
		s.log.Info("keypad timing updated",
			"repeat_delay", t.RepeatDelay, "repeat_rate", t.RepeatRate, "long_press", t.LongPressDelay)
	})
}

// Stop refuses further scans and drops the config subscription.
func (s *Service) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	if s.conn != nil && s.cfgSub != nil {
		s.conn.Unsubscribe(s.cfgSub)
	}
}

func (s *Service) Stopped() bool      { return s.stopped.Load() }
func (s *Service) Drops() uint32      { return s.drops.Load() }
func (s *Service) PoolMisses() uint32 { return s.poolMisses.Load() }

// ReleaseFailures counts staging slots the pool refused to take back.
func (s *Service) ReleaseFailures() uint32 { return s.releaseFails.Load() }
