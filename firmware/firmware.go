// Package firmware assembles the calculator: bus, settings, the three
// scheduled tasks and everything they drive, on top of a hal.Board.
package firmware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/services/backlight"
	"calcpad-go/services/config"
	"calcpad-go/services/console"
	"calcpad-go/services/display"
	"calcpad-go/services/feedback"
	"calcpad-go/services/hal"
	"calcpad-go/services/heartbeat"
	"calcpad-go/services/keypad"
	"calcpad-go/services/scheduler"
	"calcpad-go/services/sleep"
	"calcpad-go/services/system"
	"calcpad-go/services/watchdog"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/pool"
	"calcpad-go/x/queue"
	"calcpad-go/x/shmring"
	"calcpad-go/x/timex"
)

// Queue and pool sizing.
const (
	KeyEventQueueLen = 10
	DisplayQueueLen  = 5

	KeyEventPoolSize = 20
	KeyEventPoolWarn = 15
	DisplayPoolSize  = 10
	DisplayPoolWarn  = 7

	ConsoleRingSize = 256
	busQueueLen     = 16
)

// Task table.
var (
	KeypadTask  = scheduler.Task{Name: "keypad", Priority: 3, Core: 1, Period: 10 * time.Millisecond}
	DisplayTask = scheduler.Task{Name: "display", Priority: 2, Core: 1, Period: 20 * time.Millisecond}
	SystemTask  = scheduler.Task{Name: "system", Priority: 1, Core: 0, Period: time.Second}
)

// Version is stamped at link time.
var Version = "dev"

type Options struct {
	Clock clockwork.Clock
	Log   logx.Logger
	Level *logx.LevelVar // adjusted by config/system and log_level

	App display.App       // defaults to a LogApp
	GUI display.GUITicker // optional

	WatchdogTimeout time.Duration // defaults to watchdog.DefaultTimeout
	Positions       keypad.Positions
}

type Firmware struct {
	board *hal.Board
	clock clockwork.Clock
	log   logx.Logger
	level *logx.LevelVar

	bus    *bus.Bus
	conn   *bus.Connection
	bootID string
	start  time.Time

	keyQ     *queue.Queue[types.KeyEvent]
	keyPool  *pool.Pool[types.KeyEvent]
	dispQ    *queue.Queue[pool.Handle]
	dispPool *pool.Pool[types.DisplayUpdate]
	ring     *shmring.Ring

	cfg   *config.Manager
	sm    *system.StateMachine
	wd    *watchdog.Supervisor
	sleep *sleep.Manager
	light *backlight.Controller
	fb    *feedback.Engine
	keys  *keypad.Service
	disp  *display.Service
	pub   *display.Publisher
	app   display.App
	con   *console.Console
	mon   *system.Monitor
	hb    *heartbeat.Service
	sched *scheduler.Scheduler

	mu       sync.Mutex
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New builds every service on board. Settings come from store on Run.
func New(board *hal.Board, store config.Store, o Options) (*Firmware, error) {
	const op = "firmware.New"
	if board == nil || board.Port == nil {
		return nil, errcode.New(errcode.InvalidParams, op, "board with a keypad port is required")
	}
	if store == nil {
		store = config.NewMemoryStore()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = logx.Nop()
	}
	if o.WatchdogTimeout <= 0 {
		o.WatchdogTimeout = watchdog.DefaultTimeout
	}

	f := &Firmware{
		board:    board,
		clock:    o.Clock,
		log:      o.Log.WithComponent("FIRMWARE"),
		level:    o.Level,
		bus:      bus.NewBus(busQueueLen),
		bootID:   uuid.NewString(),
		start:    o.Clock.Now(),
		keyQ:     queue.New[types.KeyEvent](KeyEventQueueLen),
		keyPool:  pool.New[types.KeyEvent](KeyEventPoolSize),
		dispQ:    queue.New[pool.Handle](DisplayQueueLen),
		dispPool: pool.New[types.DisplayUpdate](DisplayPoolSize),
		ring:     shmring.New(ConsoleRingSize),
	}
	f.conn = f.bus.NewConnection("firmware")
	log := o.Log

	f.cfg = config.NewManager(store, f.conn, log.WithComponent("CONFIG"))
	f.sm = system.NewStateMachine(f.conn, f.clock, log.WithComponent("STATE"))
	f.wd = watchdog.NewSupervisor(board.Watchdog, o.WatchdogTimeout, log.WithComponent("WATCHDOG"), watchdog.WithClock(f.clock))

	defaults := types.DefaultSettings()
	f.sleep = sleep.New(f.clock, timex.Ms(defaults.Sleep.TimeoutMs), log.WithComponent("SLEEP"))
	f.sleep.Attach(f.conn)

	f.light = backlight.New(board.Backlight)
	f.light.Attach(f.conn)

	f.fb = feedback.NewEngine(board.Strip, board.Tone, defaults.LED, defaults.Buzzer, log.WithComponent("FEEDBACK"))
	f.fb.Attach(f.conn)

	if err := f.wireSleep(); err != nil {
		return nil, err
	}

	var err error
	f.keys, err = keypad.New(keypad.Options{
		Port:      board.Port,
		Positions: o.Positions,
		Events:    f.keyQ,
		Pool:      f.keyPool,
		Feedback:  f.fb,
		Activity:  f.sleep.Feed,
		Conn:      f.conn,
		Clock:     f.clock,
		Log:       log.WithComponent("KEYPAD"),
	})
	if err != nil {
		return nil, err
	}

	f.app = o.App
	if f.app == nil {
		f.app = display.NewLogApp(log.WithComponent("APP"))
	}
	f.pub = display.NewPublisher(f.dispPool, f.dispQ, f.clock, log.WithComponent("DISPLAY"))
	f.disp, err = display.New(display.Options{
		Keys:      f.keyQ,
		Updates:   f.dispQ,
		Pool:      f.dispPool,
		App:       f.app,
		GUI:       o.GUI,
		Backlight: f.light,
		Conn:      f.conn,
		Clock:     f.clock,
		Log:       log.WithComponent("DISPLAY"),
	})
	if err != nil {
		return nil, err
	}
	f.sm.OnChange(func(ch types.StateChange) {
		_ = f.pub.Post(types.DisplayUpdate{Kind: types.DisplayState, Value: int32(ch.To)})
	})

	f.con = console.New(f.ring, board.Out, log.WithComponent("CONSOLE"))
	if err := console.RegisterBuiltins(f.con, f.consoleDeps()); err != nil {
		return nil, err
	}

	f.sched = scheduler.New(f.clock, f.wd, log)
	f.mon = system.NewMonitor(system.MonitorOptions{
		Probe: board.Probe,
		State: f.sm,
		Tasks: f.sched,
		Pools: []system.Gauge{
			system.PoolGauge(system.KeyEvents, f.keyPool.UsedCount, KeyEventPoolSize, KeyEventPoolWarn),
			system.PoolGauge(system.DisplayUpdates, f.dispPool.UsedCount, DisplayPoolSize, DisplayPoolWarn),
		},
		Queues: []system.Gauge{
			system.QueueGauge(system.KeyEvents, f.keyQ.Len, f.keyQ.Cap(), f.keyQ.Drops),
			system.QueueGauge(system.DisplayUpdates, f.dispQ.Len, f.dispQ.Cap(), f.dispQ.Drops),
		},
		Conn:     f.conn,
		Clock:    f.clock,
		Log:      log.WithComponent("MONITOR"),
		Sleeping: f.sleep.IsSleeping,
	})
	sysTask := system.NewTask(system.TaskOptions{
		Console: f.con,
		Sleep:   f.sleep,
		Config:  f.cfg,
		Monitor: f.mon,
		Level:   f.level,
		Conn:    f.conn,
		Log:     log.WithComponent("SYSTEM"),
	})

	for _, t := range []struct {
		task scheduler.Task
		body scheduler.Body
	}{
		{KeypadTask, f.keys.Cycle},
		{DisplayTask, f.disp.Cycle},
		{SystemTask, sysTask.Cycle},
	} {
		t.task.Body = t.body
		if err := f.sched.Add(t.task); err != nil {
			return nil, err
		}
	}

	f.hb = heartbeat.New(f.wd, []heartbeat.Watch{
		{Task: KeypadTask.Name, MaxInterval: 100 * KeypadTask.Period},
		{Task: DisplayTask.Name, MaxInterval: 50 * DisplayTask.Period},
		{Task: SystemTask.Name, MaxInterval: 5 * SystemTask.Period},
	}, f.conn, f.clock, log.WithComponent("HEALTH"))

	return f, nil
}

// wireSleep ties the sleep manager to the state machine, backlight and
// feedback outputs.
func (f *Firmware) wireSleep() error {
	if _, err := f.sleep.AddSleepCallback(func() {
		if err := f.sm.Transition(types.StateSleeping, "inactivity"); err != nil {
			f.log.Debug("sleep without state change", "state", f.sm.State().String())
		}
		f.light.Dim()
		f.fb.Stop()
	}); err != nil {
		return err
	}
	_, err := f.sleep.AddWakeCallback(func() {
		f.light.Restore()
		if f.sm.State() == types.StateSleeping {
			_ = f.sm.Transition(types.StateRunning, "activity")
		}
	})
	return err
}

func (f *Firmware) consoleDeps() console.Deps {
	return console.Deps{
		Config:   f.cfg,
		Sleep:    f.sleep,
		Feedback: f.fb,
		Clock:    f.clock,
		Status:   f.status,
		Mem:      mem,
		Tasks:    func() []types.TaskInfo { return f.sched.Snapshot() },
		Pools: func() []console.Usage {
			return []console.Usage{
				{Name: system.KeyEvents, Used: f.keyPool.UsedCount(), Cap: f.keyPool.Cap()},
				{Name: system.DisplayUpdates, Used: f.dispPool.UsedCount(), Cap: f.dispPool.Cap()},
			}
		},
		Queues: func() []console.Usage {
			return []console.Usage{
				{Name: system.KeyEvents, Used: f.keyQ.Len(), Cap: f.keyQ.Cap(), Drops: f.keyQ.Drops()},
				{Name: system.DisplayUpdates, Used: f.dispQ.Len(), Cap: f.dispQ.Cap(), Drops: f.dispQ.Drops()},
			}
		},
		Show:     f.Show,
		Reboot:   f.Reboot,
		Shutdown: f.Shutdown,
	}
}

func (f *Firmware) status() console.Status {
	s := console.Status{
		State:  f.sm.State(),
		Uptime: f.clock.Since(f.start),
		BootID: f.bootID,
		Errors: f.mon.ErrorTotal(),
	}
	if errs := f.mon.Errors(); len(errs) > 0 {
		last := errs[len(errs)-1]
		s.LastError = last.Source + ": " + last.Err
	}
	return s
}

func mem() console.Mem {
	free, sys, inuse, gc := system.RuntimeProbe{}.MemStats()
	return console.Mem{FreeHeap: free, HeapSys: sys, HeapInuse: inuse, NumGC: gc}
}

// Run loads settings, arms the watchdog, moves to Running and runs the
// tasks until ctx is cancelled or Shutdown is called.
func (f *Firmware) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return errcode.New(errcode.Busy, "firmware.Run", "already running")
	}
	f.cancel = cancel
	f.mu.Unlock()

	f.conn.Publish(f.conn.NewMessage(system.TopicBoot, types.BootInfo{
		ID:      f.bootID,
		Board:   f.board.Name,
		Version: Version,
		TS:      f.start.UnixMilli(),
	}, true))
	f.log.Info("boot", "id", f.bootID, "board", f.board.Name, "version", Version)

	if err := f.cfg.Load(); err != nil {
		f.log.Warn(err, "settings not loaded, using defaults")
	}

	if f.board.Reader != nil {
		go func() {
			if err := f.board.Reader(ctx, f.ring); err != nil && ctx.Err() == nil {
				f.log.Warn(err, "console input stopped")
			}
		}()
	}

	if err := f.wd.Arm(); err != nil {
		f.log.Warn(err, "running without watchdog")
	}
	_ = f.hb.Start(ctx)

	if err := f.sm.Transition(types.StateRunning, "boot complete"); err != nil {
		return err
	}
	err := f.sched.Run(ctx)
	f.Shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops every task and releases queues and pools. Pending
// settings are saved. It is safe to call more than once.
func (f *Firmware) Shutdown() {
	f.shutdown.Do(func() {
		if err := f.sm.Transition(types.StateShutdown, "shutdown"); err != nil {
			f.log.Debug("shutdown transition", "error", err.Error())
		}
		f.mu.Lock()
		if f.cancel != nil {
			f.cancel()
		}
		f.mu.Unlock()

		f.keys.Stop()
		f.fb.Stop()
		f.keyQ.Close()
		f.dispQ.Close()
		f.keyPool.Close()
		f.dispPool.Close()
		if s, ok := f.board.Watchdog.(interface{ Stop() }); ok {
			s.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.LockTimeout)
		defer cancel()
		if _, err := f.cfg.SaveIfDirty(ctx); err != nil {
			f.log.Warn(err, "settings not saved at shutdown")
		}
		f.log.Info("shutdown complete")
	})
}

// Reboot shuts down and calls the board reset hook.
func (f *Firmware) Reboot() {
	f.Shutdown()
	if f.board.Reset != nil {
		f.board.Reset()
	}
}

// Show posts text to the display task.
func (f *Firmware) Show(text string) error {
	var u types.DisplayUpdate
	u.Kind = types.DisplayText
	u.SetText(text)
	return f.pub.Post(u)
}

func (f *Firmware) Bus() *bus.Bus                           { return f.bus }
func (f *Firmware) Conn() *bus.Connection                   { return f.conn }
func (f *Firmware) BootID() string                          { return f.bootID }
func (f *Firmware) Config() *config.Manager                 { return f.cfg }
func (f *Firmware) State() *system.StateMachine             { return f.sm }
func (f *Firmware) Watchdog() *watchdog.Supervisor          { return f.wd }
func (f *Firmware) Sleep() *sleep.Manager                   { return f.sleep }
func (f *Firmware) Backlight() *backlight.Controller        { return f.light }
func (f *Firmware) Feedback() *feedback.Engine              { return f.fb }
func (f *Firmware) Keypad() *keypad.Service                 { return f.keys }
func (f *Firmware) Display() *display.Service               { return f.disp }
func (f *Firmware) Publisher() *display.Publisher           { return f.pub }
func (f *Firmware) App() display.App                        { return f.app }
func (f *Firmware) Console() *console.Console               { return f.con }
func (f *Firmware) Monitor() *system.Monitor                { return f.mon }
func (f *Firmware) Heartbeat() *heartbeat.Service           { return f.hb }
func (f *Firmware) Scheduler() *scheduler.Scheduler         { return f.sched }
func (f *Firmware) KeyEvents() *queue.Queue[types.KeyEvent] { return f.keyQ }
