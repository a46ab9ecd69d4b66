package system

import (
	"context"
	"errors"
	"runtime"

	"calcpad-go/bus"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/timex"
)

var topicConfigSystem = bus.T("config", "system")

// Every-N-cycles schedule of the system task.
const (
	AutosaveEvery = 5
	HealthEvery   = 10
	CleanupEvery  = 30
	StackEvery    = 60
)

// Console is drained once per cycle.
type Console interface{ Process() int }

// Sleeper is ticked once per cycle.
type Sleeper interface{ Update() }

// Saver persists dirty settings.
type Saver interface {
	SaveIfDirty(ctx context.Context) (bool, error)
}

type TaskOptions struct {
	Console Console
	Sleep   Sleeper
	Config  Saver
	Monitor *Monitor
	Level   *logx.LevelVar // adjusted from config/system
	Conn    *bus.Connection
	GC      func() // defaults to runtime.GC
	Log     logx.Logger
}

// Task is the body of the system task.
type Task struct {
	con   Console
	sleep Sleeper
	cfg   Saver
	mon   *Monitor
	level *logx.LevelVar
	sub   *bus.Subscription
	gc    func()
	log   logx.Logger
}

func NewTask(o TaskOptions) *Task {
	if o.GC == nil {
		o.GC = runtime.GC
	}
	if o.Log == nil {
		o.Log = logx.Nop()
	}
	t := &Task{
		con:   o.Console,
		sleep: o.Sleep,
		cfg:   o.Config,
		mon:   o.Monitor,
		level: o.Level,
		gc:    o.GC,
		log:   o.Log,
	}
	if o.Conn != nil && o.Level != nil {
		t.sub = o.Conn.Subscribe(topicConfigSystem)
	}
	return t
}

// Cycle runs the per-cycle work and whichever periodic jobs are due.
func (t *Task) Cycle(ctx context.Context, cycle uint32) error {
	if t.sub != nil {
		t.sub.Poll(t.applyLevel)
	}
	if t.con != nil {
		t.con.Process()
	}
	if t.sleep != nil {
		t.sleep.Update()
	}

	var errs []error
	if t.cfg != nil && timex.Every(cycle, AutosaveEvery) {
		saved, err := t.cfg.SaveIfDirty(ctx)
		if err != nil {
			errs = append(errs, err)
			if t.mon != nil {
				t.mon.Record("autosave", err)
			}
		} else if saved {
			t.log.Debug("settings autosaved")
		}
	}
	if t.mon != nil && timex.Every(cycle, HealthEvery) {
		t.mon.Check()
	}
	if timex.Every(cycle, CleanupEvery) {
		t.gc()
	}
	if t.mon != nil && timex.Every(cycle, StackEvery) {
		t.mon.AuditStacks()
	}
	return errors.Join(errs...)
}

func (t *Task) applyLevel(msg *bus.Message) {
	s, ok := msg.Payload.(types.SystemSettings)
	if !ok {
		return
	}
	if l, ok := logx.ParseLevel(s.LogLevel); ok && l != t.level.Level() {
		t.level.Set(l)
		t.log.Info("log level changed", "level", l.String())
	}
}
