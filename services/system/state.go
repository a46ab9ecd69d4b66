// Package system owns the device-level state machine, the health monitor
// and the body of the system task.
package system

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

var (
	TopicState  = bus.T("system", "state")
	TopicHealth = bus.T("system", "health")
	TopicBoot   = bus.T("system", "boot")
)

// StateMachine holds the SystemState. Every change is logged and published
// retained on system/state.
type StateMachine struct {
	conn  *bus.Connection
	clock clockwork.Clock
	log   logx.Logger

	mu        sync.Mutex
	state     types.SystemState
	listeners []func(types.StateChange)
}

func NewStateMachine(conn *bus.Connection, clock clockwork.Clock, log logx.Logger) *StateMachine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	m := &StateMachine{conn: conn, clock: clock, log: log, state: types.StateInitializing}
	m.publish(types.StateChange{From: types.StateInitializing, To: types.StateInitializing, TS: clock.Now().UnixMilli()})
	return m
}

func allowed(from, to types.SystemState) bool {
	if to == types.StateShutdown {
		return true
	}
	switch from {
	case types.StateInitializing:
		return to == types.StateRunning
	case types.StateRunning:
		return to == types.StateSleeping || to == types.StateError
	case types.StateSleeping:
		return to == types.StateRunning || to == types.StateError
	case types.StateError:
		return to == types.StateRunning || to == types.StateSleeping
	}
	return false
}

// Transition moves to the given state. Moving to the current state is a
// no-op. Once in Shutdown every call fails with errcode.Shutdown.
func (m *StateMachine) Transition(to types.SystemState, reason string) error {
	m.mu.Lock()
	from := m.state
	switch {
	case from == types.StateShutdown:
		m.mu.Unlock()
		return errcode.New(errcode.Shutdown, "system.Transition", "system is shut down")
	case from == to:
		m.mu.Unlock()
		return nil
	case !allowed(from, to):
		m.mu.Unlock()
		return errcode.New(errcode.InvalidTransition, "system.Transition", from.String()+" -> "+to.String())
	}
	m.state = to
	ls := slices.Clone(m.listeners)
	m.mu.Unlock()

	ch := types.StateChange{From: from, To: to, Reason: reason, TS: m.clock.Now().UnixMilli()}
	if to == types.StateError {
		m.log.Warn(errcode.Error, "state change", "from", from.String(), "to", to.String(), "reason", reason)
	} else {
		m.log.Info("state change", "from", from.String(), "to", to.String(), "reason", reason)
	}
	m.publish(ch)
	for _, fn := range ls {
		fn(ch)
	}
	return nil
}

func (m *StateMachine) publish(ch types.StateChange) {
	if m.conn != nil {
		m.conn.Publish(m.conn.NewMessage(TopicState, ch, true))
	}
}

// OnChange registers a listener run after each transition, outside the
// lock.
func (m *StateMachine) OnChange(fn func(types.StateChange)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *StateMachine) State() types.SystemState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
