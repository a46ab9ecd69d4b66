package system

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

// Gauge names filled into types.Health.
const (
	KeyEvents      = "keyevent"
	DisplayUpdates = "display"
)

const (
	HeapFloor      = 8 * 1024
	StackWarnWords = 256
	ErrorLogSize   = 16
)

// Gauge is the occupancy of one pool or queue. The monitor warns when Used
// exceeds WarnAbove.
type Gauge struct {
	Name      string
	Used      func() int
	Cap       int
	WarnAbove int
	Drops     func() uint32 // optional
}

// PoolGauge warns when more than warnAbove slots are checked out.
func PoolGauge(name string, used func() int, capacity, warnAbove int) Gauge {
	return Gauge{Name: name, Used: used, Cap: capacity, WarnAbove: warnAbove}
}

// QueueGauge warns at 70% fill.
func QueueGauge(name string, length func() int, capacity int, drops func() uint32) Gauge {
	return Gauge{Name: name, Used: length, Cap: capacity, WarnAbove: (capacity*7+9)/10 - 1, Drops: drops}
}

// Tasks is the scheduler as seen by the monitor.
type Tasks interface {
	Snapshot() []types.TaskInfo
	SetStackHighWater(name string, words uint32) bool
}

// ErrorEntry is one line of the bounded error log.
type ErrorEntry struct {
	TS     time.Time
	Source string
	Err    string
}

type MonitorOptions struct {
	Probe  ResourceProbe
	State  *StateMachine
	Tasks  Tasks
	Pools  []Gauge
	Queues []Gauge
	Conn   *bus.Connection
	Clock  clockwork.Clock
	Log    logx.Logger

	// Sleeping reports whether the device is asleep; a recovered heap then
	// returns to Sleeping instead of Running. Optional.
	Sleeping func() bool
}

// Monitor runs the soft health checks from the system task.
type Monitor struct {
	probe  ResourceProbe
	sm     *StateMachine
	tasks  Tasks
	pools  []Gauge
	queues []Gauge
	conn   *bus.Connection
	clock  clockwork.Clock
	log    logx.Logger
	asleep func() bool

	mu       sync.Mutex
	errs     [ErrorLogSize]ErrorEntry
	errNext  int
	errTotal uint32
	last     types.Health
}

func NewMonitor(o MonitorOptions) *Monitor {
	if o.Probe == nil {
		o.Probe = RuntimeProbe{}
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = logx.Nop()
	}
	return &Monitor{
		probe:  o.Probe,
		sm:     o.State,
		tasks:  o.Tasks,
		pools:  o.Pools,
		queues: o.Queues,
		conn:   o.Conn,
		clock:  o.Clock,
		log:    o.Log,
		asleep: o.Sleeping,
	}
}

// Record appends to the error log, overwriting the oldest entry when full.
func (m *Monitor) Record(source string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.errs[m.errNext] = ErrorEntry{TS: m.clock.Now(), Source: source, Err: err.Error()}
	m.errNext = (m.errNext + 1) % ErrorLogSize
	m.errTotal++
	m.mu.Unlock()
}

// Errors returns the logged errors, oldest first.
func (m *Monitor) Errors() []ErrorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int(m.errTotal)
	if n > ErrorLogSize {
		n = ErrorLogSize
	}
	out := make([]ErrorEntry, 0, n)
	start := (m.errNext - n + ErrorLogSize) % ErrorLogSize
	for i := 0; i < n; i++ {
		out = append(out, m.errs[(start+i)%ErrorLogSize])
	}
	return out
}

// ErrorTotal counts every recorded error, including overwritten ones.
func (m *Monitor) ErrorTotal() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errTotal
}

func (m *Monitor) LastHealth() types.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Check runs the health checks. Low heap moves the system to Error; a
// recovered heap brings it back to Running, or to Sleeping while the sleep
// manager still has the device asleep. Occupancy and task errors only warn.
func (m *Monitor) Check() types.Health {
	now := m.clock.Now()
	h := types.Health{FreeHeap: m.probe.FreeHeap(), TS: now.UnixMilli()}

	if m.sm != nil {
		st := m.sm.State()
		switch {
		case h.FreeHeap < HeapFloor && (st == types.StateRunning || st == types.StateSleeping):
			err := errcode.New(errcode.LowHeap, "system.Check", "free heap below floor")
			m.log.Error(err, "health check failed", "free", h.FreeHeap, "floor", HeapFloor)
			m.Record("health", err)
			_ = m.sm.Transition(types.StateError, "low heap")
		case h.FreeHeap >= HeapFloor && st == types.StateError:
			to := types.StateRunning
			if m.asleep != nil && m.asleep() {
				to = types.StateSleeping
			}
			_ = m.sm.Transition(to, "heap recovered")
		}
	}

	for _, g := range m.pools {
		used := g.Used()
		switch g.Name {
		case KeyEvents:
			h.KeyPoolUsed = used
		case DisplayUpdates:
			h.DispPoolUsed = used
		}
		if used > g.WarnAbove {
			m.log.Warn(errcode.PoolExhausted, "pool usage high", "pool", g.Name, "used", used, "cap", g.Cap)
		}
	}
	for _, g := range m.queues {
		used := g.Used()
		switch g.Name {
		case KeyEvents:
			h.KeyQueueLen = used
		case DisplayUpdates:
			h.DispQueueLen = used
		}
		if used > g.WarnAbove {
			m.log.Warn(errcode.QueueFull, "queue filling", "queue", g.Name, "len", used, "cap", g.Cap)
		}
	}

	if m.tasks != nil {
		for _, t := range m.tasks.Snapshot() {
			h.Errors += t.Stats.Errors
			if t.Stats.Errors > 0 {
				m.log.Warn(errcode.Error, "task errors", "task", t.Name, "count", t.Stats.Errors)
			}
		}
	}
	m.log.Debug("health", "free", h.FreeHeap, "key_pool", h.KeyPoolUsed, "key_queue", h.KeyQueueLen)

	m.mu.Lock()
	m.last = h
	m.mu.Unlock()
	if m.conn != nil {
		m.conn.Publish(m.conn.NewMessage(TopicHealth, h, true))
	}
	return h
}

// AuditStacks records the free stack of every task where the probe can
// measure it.
func (m *Monitor) AuditStacks() {
	if m.tasks == nil {
		return
	}
	for _, t := range m.tasks.Snapshot() {
		words, ok := m.probe.StackFree(t.Name)
		if !ok {
			m.log.Debug("stack usage unavailable", "task", t.Name)
			continue
		}
		m.tasks.SetStackHighWater(t.Name, words)
		if words < StackWarnWords {
			m.log.Warn(errcode.Error, "stack nearly exhausted", "task", t.Name, "free_words", words)
		}
	}
}
