package console

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/errcode"
	"calcpad-go/services/config"
	"calcpad-go/services/feedback"
	"calcpad-go/services/sleep"
	"calcpad-go/types"
)

// Status is what the status command prints.
type Status struct {
	State     types.SystemState
	Uptime    time.Duration
	BootID    string
	Errors    uint32
	LastError string
}

// Mem is a heap summary in bytes.
type Mem struct {
	FreeHeap  uint64
	HeapSys   uint64
	HeapInuse uint64
	NumGC     uint32
}

// Usage is the occupancy of one pool or queue.
type Usage struct {
	Name  string
	Used  int
	Cap   int
	Drops uint32
}

// Deps are the firmware pieces the built-in commands act on. Nil fields
// make the matching commands report unsupported.
type Deps struct {
	Config   *config.Manager
	Sleep    *sleep.Manager
	Feedback *feedback.Engine
	Clock    clockwork.Clock

	Status   func() Status
	Mem      func() Mem
	Tasks    func() []types.TaskInfo
	Pools    func() []Usage
	Queues   func() []Usage
	Show     func(text string) error
	Reboot   func()
	Shutdown func()
}

func unsupported(cmd string) error {
	return errcode.New(errcode.Unsupported, cmd, "not available on this board")
}

// RegisterBuiltins installs the standard command set.
func RegisterBuiltins(c *Console, d Deps) error {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	b := builtins{c: c, d: d}
	for _, cmd := range []Command{
		{Name: "help", Usage: "help", Help: "list commands", Run: b.help},
		{Name: "status", Usage: "status", Help: "system state and uptime", Run: b.status},
		{Name: "mem", Usage: "mem", Help: "heap usage", Run: b.mem},
		{Name: "tasks", Usage: "tasks", Help: "task timing and stack", Run: b.tasks},
		{Name: "pool", Usage: "pool", Help: "object pool occupancy", Run: b.usage("pool", d.Pools)},
		{Name: "queue", Usage: "queue", Help: "event queue occupancy", Run: b.usage("queue", d.Queues)},
		{Name: "config", Usage: "config [get <key>|set <key> <value>|save|reset|show]", Help: "view or change settings", Run: b.config},
		{Name: "sleep", Usage: "sleep [now|wake|timeout <ms>]", Help: "sleep control", Run: b.sleep},
		{Name: "backlight", Usage: "backlight <0..100>", Help: "LCD backlight percent", Run: b.set("backlight.percent")},
		{Name: "brightness", Usage: "brightness <0..255>", Help: "LED brightness", Run: b.set("led.brightness")},
		{Name: "buzzer", Usage: "buzzer [test|volume <0..3>|on|off]", Help: "buzzer control", Run: b.buzzer},
		{Name: "piano", Usage: "piano [on|off]", Help: "piano tone mode", Run: b.piano},
		{Name: "log_level", Usage: "log_level <debug|info|warn|error>", Help: "set log level", Run: b.set("system.log_level")},
		{Name: "show", Usage: "show <text>", Help: "print text on the display", Run: b.show},
		{Name: "reboot", Usage: "reboot", Help: "restart the device", Run: b.call("reboot", d.Reboot, "rebooting")},
		{Name: "shutdown", Usage: "shutdown", Help: "stop all tasks", Run: b.call("shutdown", d.Shutdown, "shutting down")},
	} {
		if err := c.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

type builtins struct {
	c *Console
	d Deps
}

func (b builtins) help(w io.Writer, _ []string) error {
	p := b.c.printer(w)
	p.styled(heading, "commands:\n")
	for _, cmd := range b.c.Commands() {
		p.f("  %-40s %s\n", cmd.Usage, cmd.Help)
	}
	return nil
}

func stateStyle(s types.SystemState) style {
	switch s {
	case types.StateRunning:
		return good
	case types.StateSleeping:
		return warn
	case types.StateError, types.StateShutdown:
		return bad
	}
	return plain
}

func (b builtins) status(w io.Writer, _ []string) error {
	if b.d.Status == nil {
		return unsupported("status")
	}
	s := b.d.Status()
	p := b.c.printer(w)
	p.f("state:  ")
	p.styled(stateStyle(s.State), "%s\n", s.State)
	p.f("uptime: %s\n", s.Uptime.Truncate(time.Second))
	if s.BootID != "" {
		p.f("boot:   %s\n", s.BootID)
	}
	p.f("errors: %d\n", s.Errors)
	if s.LastError != "" {
		p.styled(warn, "last:   %s\n", s.LastError)
	}
	return nil
}

func (b builtins) mem(w io.Writer, _ []string) error {
	if b.d.Mem == nil {
		return unsupported("mem")
	}
	m := b.d.Mem()
	p := b.c.printer(w)
	p.f("free:   %d\n", m.FreeHeap)
	p.f("sys:    %d\n", m.HeapSys)
	p.f("inuse:  %d\n", m.HeapInuse)
	p.f("gc:     %d\n", m.NumGC)
	return nil
}

func (b builtins) tasks(w io.Writer, _ []string) error {
	if b.d.Tasks == nil {
		return unsupported("tasks")
	}
	p := b.c.printer(w)
	p.styled(heading, "%-8s %3s %4s %7s %8s %9s %9s %9s %6s %6s\n",
		"task", "pri", "core", "period", "cycles", "last", "avg", "max", "errors", "stack")
	for _, t := range b.d.Tasks() {
		st := t.Stats
		stack := "-"
		if st.StackHighWater > 0 {
			stack = strconv.FormatUint(uint64(st.StackHighWater), 10)
		}
		line := plain
		if st.Errors > 0 || st.Overruns > 0 {
			line = warn
		}
		p.styled(line, "%-8s %3d %4d %7s %8d %9s %9s %9s %6d %6s\n",
			t.Name, t.Priority, t.Core, t.Period, st.CycleCount,
			st.LastCycle, st.AvgCycle, st.MaxCycle, st.Errors, stack)
	}
	return nil
}

func (b builtins) usage(name string, fn func() []Usage) func(io.Writer, []string) error {
	return func(w io.Writer, _ []string) error {
		if fn == nil {
			return unsupported(name)
		}
		p := b.c.printer(w)
		for _, u := range fn() {
			s := plain
			if u.Cap > 0 && u.Used*10 >= u.Cap*7 {
				s = warn
			}
			p.styled(s, "%-10s %3d/%-3d drops=%d\n", u.Name, u.Used, u.Cap, u.Drops)
		}
		return nil
	}
}

func (b builtins) config(w io.Writer, args []string) error {
	m := b.d.Config
	if m == nil {
		return unsupported("config")
	}
	p := b.c.printer(w)
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch {
	case sub == "show":
		for _, k := range config.Keys() {
			v, _ := m.Get(k)
			p.f("%-28s %s\n", k, v)
		}
		if m.Dirty() {
			p.styled(warn, "(unsaved changes)\n")
		}
	case sub == "get" && len(args) == 2:
		v, err := m.Get(args[1])
		if err != nil {
			return err
		}
		p.f("%s = %s\n", args[1], v)
	case sub == "set" && len(args) >= 3:
		if err := m.Set(args[1], strings.Join(args[2:], " ")); err != nil {
			return err
		}
		v, _ := m.Get(args[1])
		p.styled(good, "%s = %s\n", args[1], v)
	case sub == "save":
		if err := m.Save(context.Background()); err != nil {
			return err
		}
		p.styled(good, "saved\n")
	case sub == "reset":
		if err := m.Reset(); err != nil {
			return err
		}
		p.styled(good, "defaults restored\n")
	default:
		return errcode.New(errcode.InvalidParams, "config", "usage: config [get <key>|set <key> <value>|save|reset|show]")
	}
	return nil
}

func (b builtins) sleep(w io.Writer, args []string) error {
	s := b.d.Sleep
	if s == nil {
		return unsupported("sleep")
	}
	p := b.c.printer(w)
	if len(args) == 0 {
		state := "awake"
		if s.IsSleeping() {
			state = "sleeping"
		}
		p.f("%s, idle %s, timeout %s\n", state, s.Idle().Truncate(time.Millisecond), s.Timeout())
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "now":
		s.SetState(true)
	case "wake":
		s.SetState(false)
	case "timeout":
		if len(args) != 2 {
			return errcode.New(errcode.InvalidParams, "sleep", "usage: sleep timeout <ms>")
		}
		if b.d.Config != nil {
			return b.d.Config.Set("sleep.timeout_ms", args[1])
		}
		ms, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return errcode.Wrap(errcode.InvalidParams, "sleep", err)
		}
		s.SetTimeout(time.Duration(ms) * time.Millisecond)
	default:
		return errcode.New(errcode.InvalidParams, "sleep", "usage: sleep [now|wake|timeout <ms>]")
	}
	return nil
}

// set binds a one-argument command to a settings key.
func (b builtins) set(key string) func(io.Writer, []string) error {
	return func(w io.Writer, args []string) error {
		if b.d.Config == nil {
			return unsupported(key)
		}
		if len(args) != 1 {
			return errcode.New(errcode.InvalidParams, key, "expected one value")
		}
		if err := b.d.Config.Set(key, args[0]); err != nil {
			return err
		}
		v, _ := b.d.Config.Get(key)
		b.c.printer(w).styled(good, "%s = %s\n", key, v)
		return nil
	}
}

func (b builtins) buzzer(w io.Writer, args []string) error {
	if len(args) == 0 {
		return errcode.New(errcode.InvalidParams, "buzzer", "usage: buzzer [test|volume <0..3>|on|off]")
	}
	switch strings.ToLower(args[0]) {
	case "test":
		if b.d.Feedback == nil {
			return unsupported("buzzer")
		}
		b.d.Feedback.Test(b.d.Clock.Now())
		b.c.printer(w).f("beep\n")
		return nil
	case "volume":
		if len(args) != 2 {
			return errcode.New(errcode.InvalidParams, "buzzer", "usage: buzzer volume <0..3>")
		}
		return b.set("buzzer.volume")(w, args[1:])
	case "on":
		return b.set("buzzer.enabled")(w, []string{"true"})
	case "off":
		return b.set("buzzer.enabled")(w, []string{"false"})
	}
	return errcode.New(errcode.InvalidParams, "buzzer", "usage: buzzer [test|volume <0..3>|on|off]")
}

func (b builtins) piano(w io.Writer, args []string) error {
	if b.d.Config == nil {
		return unsupported("piano")
	}
	if len(args) == 0 {
		v, _ := b.d.Config.Get("buzzer.mode")
		b.c.printer(w).f("buzzer.mode = %s\n", v)
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return b.set("buzzer.mode")(w, []string{string(types.BuzzerPiano)})
	case "off":
		return b.set("buzzer.mode")(w, []string{string(types.BuzzerNormal)})
	}
	return errcode.New(errcode.InvalidParams, "piano", "usage: piano [on|off]")
}

func (b builtins) show(w io.Writer, args []string) error {
	if b.d.Show == nil {
		return unsupported("show")
	}
	if len(args) == 0 {
		return errcode.New(errcode.InvalidParams, "show", "usage: show <text>")
	}
	return b.d.Show(strings.Join(args, " "))
}

func (b builtins) call(name string, fn func(), msg string) func(io.Writer, []string) error {
	return func(w io.Writer, _ []string) error {
		if fn == nil {
			return unsupported(name)
		}
		b.c.printer(w).styled(warn, "%s\n", msg)
		fn()
		return nil
	}
}
