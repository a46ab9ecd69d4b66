// Package scheduler runs fixed-period tasks, one goroutine each, on
// absolute deadlines.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

// Body is one iteration of a task. cycle counts from 0.
type Body func(ctx context.Context, cycle uint32) error

// Task describes a periodic execution context. Priority and Core are
// recorded for monitoring; on host builds a task with Core >= 0 is pinned
// to its own OS thread.
type Task struct {
	Name     string
	Priority int
	Core     int
	Period   time.Duration
	Body     Body
}

// Feeder is fed once per task iteration.
type Feeder interface {
	Feed(task string)
}

type entry struct {
	task Task
	log  logx.Logger

	mu    sync.Mutex
	stats types.TaskStats
}

type Scheduler struct {
	clock  clockwork.Clock
	feeder Feeder
	log    logx.Logger
	limit  *logx.Limiter

	mu      sync.Mutex
	tasks   []*entry
	byName  map[string]*entry
	running atomic.Bool
}

func New(clock clockwork.Clock, feeder Feeder, log logx.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Scheduler{
		clock:  clock,
		feeder: feeder,
		log:    log,
		limit:  logx.NewLimiter(5 * time.Second),
		byName: map[string]*entry{},
	}
}

// Add registers a task. Tasks cannot be added once Run has started.
func (s *Scheduler) Add(t Task) error {
	const op = "scheduler.Add"
	switch {
	case s.running.Load():
		return errcode.New(errcode.Busy, op, "scheduler is running")
	case t.Name == "" || t.Body == nil:
		return errcode.New(errcode.InvalidParams, op, "task needs a name and a body")
	case t.Period <= 0:
		return errcode.New(errcode.InvalidParams, op, t.Name+": period must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byName[t.Name]; dup {
		return errcode.New(errcode.InvalidParams, op, t.Name+": already registered")
	}
	e := &entry{task: t, log: s.log.WithComponent(strings.ToUpper(t.Name))}
	s.tasks = append(s.tasks, e)
	s.byName[t.Name] = e
	return nil
}

// Run starts every task and blocks until ctx is cancelled. Task errors are
// logged and counted; they never stop the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errcode.New(errcode.Busy, "scheduler.Run", "already running")
	}
	defer s.running.Store(false)

	s.mu.Lock()
	tasks := append([]*entry(nil), s.tasks...)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range tasks {
		e := e
		g.Go(func() error { return s.loop(gctx, e) })
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e *entry) error {
	if e.task.Core >= 0 {
		defer lockThread()()
	}
	period := e.task.Period
	next := s.clock.Now()

	for cycle := uint32(0); ; cycle++ {
		if ctx.Err() != nil {
			return nil
		}
		if s.feeder != nil {
			s.feeder.Feed(e.task.Name)
		}

		start := s.clock.Now()
		err := safeRun(ctx, e.task.Body, cycle)
		elapsed := s.clock.Since(start)
		if err != nil {
			e.log.Error(err, "task cycle failed", "cycle", cycle)
		}

		next = next.Add(period)
		now := s.clock.Now()
		overrun := now.Sub(next) >= period
		if overrun {
			if ok, n := s.limit.Allow(e.task.Name, now); ok {
				e.log.Warn(errcode.Timeout, "task overran, resynchronising",
					"behind", now.Sub(next), "suppressed", n)
			}
			next = now
		}
		e.record(elapsed, err != nil, overrun)

		if wait := next.Sub(now); wait > 0 {
			t := s.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.Chan():
			}
		}
	}
}

func safeRun(ctx context.Context, body Body, cycle uint32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errcode.New(errcode.TaskPanic, "scheduler", panicString(r))
		}
	}()
	return body(ctx, cycle)
}

func panicString(r any) string {
	switch v := r.(type) {
	case error:
		return v.Error()
	case string:
		return v
	case interface{ String() string }:
		return v.String()
	}
	return "panic"
}

func (e *entry) record(d time.Duration, failed, overrun bool) {
	e.mu.Lock()
	st := &e.stats
	st.CycleCount++
	st.LastCycle = d
	if d > st.MaxCycle {
		st.MaxCycle = d
	}
	st.AvgCycle = (st.AvgCycle + d) / 2
	if failed {
		st.Errors++
	}
	if overrun {
		st.Overruns++
	}
	e.mu.Unlock()
}

func (s *Scheduler) lookup(name string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byName[name]
}

func (s *Scheduler) Stats(name string) (types.TaskStats, bool) {
	e := s.lookup(name)
	if e == nil {
		return types.TaskStats{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, true
}

func (s *Scheduler) ErrorCount(name string) uint32 {
	st, _ := s.Stats(name)
	return st.Errors
}

// SetStackHighWater records the free-stack reading for a task, in words.
func (s *Scheduler) SetStackHighWater(name string, words uint32) bool {
	e := s.lookup(name)
	if e == nil {
		return false
	}
	e.mu.Lock()
	e.stats.StackHighWater = words
	e.mu.Unlock()
	return true
}

// Snapshot returns every task in registration order.
func (s *Scheduler) Snapshot() []types.TaskInfo {
	s.mu.Lock()
	tasks := append([]*entry(nil), s.tasks...)
	s.mu.Unlock()

	out := make([]types.TaskInfo, 0, len(tasks))
	for _, e := range tasks {
		e.mu.Lock()
		out = append(out, types.TaskInfo{
			Name:     e.task.Name,
			Priority: e.task.Priority,
			Core:     e.task.Core,
			Period:   e.task.Period,
			Stats:    e.stats,
		})
		e.mu.Unlock()
	}
	return out
}

// Names returns the registered task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tasks))
	for i, e := range s.tasks {
		out[i] = e.task.Name
	}
	return out
}

func (s *Scheduler) Running() bool { return s.running.Load() }
