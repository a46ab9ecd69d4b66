// Package sleep tracks user activity and moves the device in and out of
// its low-power state.
package sleep

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/timex"
)

const (
	DefaultTimeout = 10 * time.Second
	MaxCallbacks   = 8
)

var topicConfigSleep = bus.T("config", "sleep")

type callback struct {
	id    int
	sleep bool
	fn    func()
}

// Manager is fed by the keypad task and updated by the system task.
type Manager struct {
	clock clockwork.Clock
	log   logx.Logger
	sub   *bus.Subscription

	mu       sync.Mutex
	timeout  time.Duration
	last     time.Time
	sleeping bool
	nextID   int
	cbs      []callback
}

// New returns a manager. A zero timeout disables sleep.
func New(clock clockwork.Clock, timeout time.Duration, log logx.Logger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	if timeout < 0 {
		timeout = 0
	}
	return &Manager{clock: clock, log: log, timeout: timeout, last: clock.Now()}
}

// Attach subscribes to sleep settings; Update applies them.
func (m *Manager) Attach(conn *bus.Connection) {
	m.sub = conn.Subscribe(topicConfigSleep)
}

func (m *Manager) AddSleepCallback(fn func()) (int, error) { return m.add(true, fn) }
func (m *Manager) AddWakeCallback(fn func()) (int, error)  { return m.add(false, fn) }

func (m *Manager) add(sleep bool, fn func()) (int, error) {
	if fn == nil {
		return 0, errcode.New(errcode.InvalidParams, "sleep.AddCallback", "nil callback")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cbs) >= MaxCallbacks {
		return 0, errcode.New(errcode.Busy, "sleep.AddCallback", "callback table full")
	}
	m.nextID++
	m.cbs = append(m.cbs, callback{id: m.nextID, sleep: sleep, fn: fn})
	return m.nextID, nil
}

func (m *Manager) RemoveCallback(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.cbs {
		if c.id == id {
			m.cbs = append(m.cbs[:i], m.cbs[i+1:]...)
			return true
		}
	}
	return false
}

// Feed records activity and wakes the device if it was asleep.
func (m *Manager) Feed() {
	m.mu.Lock()
	m.last = m.clock.Now()
	wake := m.sleeping
	m.mu.Unlock()
	if wake {
		m.SetState(false)
	}
}

// Update enters sleep once the idle time reaches the timeout. It runs on
// every system cycle.
func (m *Manager) Update() {
	if m.sub != nil {
		m.sub.Poll(m.applyConfig)
	}
	m.mu.Lock()
	due := m.timeout > 0 && !m.sleeping && m.clock.Since(m.last) >= m.timeout
	m.mu.Unlock()
	if due {
		m.SetState(true)
	}
}

func (m *Manager) applyConfig(msg *bus.Message) {
	if s, ok := msg.Payload.(types.SleepSettings); ok {
		m.SetTimeout(timex.Ms(s.TimeoutMs))
	}
}

// SetTimeout changes the inactivity timeout. Zero disables sleep and wakes
// the device.
func (m *Manager) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	m.timeout = d
	m.last = m.clock.Now()
	wake := d == 0 && m.sleeping
	m.mu.Unlock()
	m.log.Info("sleep timeout set", "timeout", d)
	if wake {
		m.SetState(false)
	}
}

// SetState forces sleep (true) or wake (false) and runs the matching
// callbacks when the state changes.
func (m *Manager) SetState(sleep bool) {
	m.mu.Lock()
	if m.sleeping == sleep {
		m.mu.Unlock()
		return
	}
	m.sleeping = sleep
	if !sleep {
		m.last = m.clock.Now()
	}
	var run []func()
	for _, c := range m.cbs {
		if c.sleep == sleep {
			run = append(run, c.fn)
		}
	}
	m.mu.Unlock()

	if sleep {
		m.log.Info("entering sleep")
	} else {
		m.log.Info("waking up")
	}
	for _, fn := range run {
		fn()
	}
}

func (m *Manager) IsSleeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleeping
}

// Idle returns the time since the last activity.
func (m *Manager) Idle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Since(m.last)
}

func (m *Manager) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}
