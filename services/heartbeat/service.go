// Package heartbeat watches the per-task feed history and reports tasks
// that stop checking in.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

var (
	TopicHeartbeat       = bus.T("system", "heartbeat")
	topicConfigHeartbeat = bus.T("config", "heartbeat")
)

const DefaultInterval = 5 * time.Second

// Config is accepted on "config/heartbeat".
type Config struct {
	IntervalMs uint32 `json:"interval_ms"`
}

// Source reports when each task last checked in.
type Source interface {
	Fed() map[string]time.Time
}

// Watch is one monitored task.
type Watch struct {
	Task        string
	MaxInterval time.Duration
}

type Service struct {
	src     Source
	watches []Watch
	conn    *bus.Connection
	clock   clockwork.Clock
	log     logx.Logger
	start   time.Time

	mu      sync.Mutex
	healthy map[string]bool
}

func New(src Source, watches []Watch, conn *bus.Connection, clock clockwork.Clock, log logx.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	s := &Service{
		src:     src,
		watches: append([]Watch(nil), watches...),
		conn:    conn,
		clock:   clock,
		log:     log,
		start:   clock.Now(),
		healthy: make(map[string]bool, len(watches)),
	}
	for _, w := range watches {
		s.healthy[w.Task] = true
	}
	return s
}

func (s *Service) serviceLoop(ctx context.Context) {
	var cfg <-chan *bus.Message
	if s.conn != nil {
		sub := s.conn.Subscribe(topicConfigHeartbeat)
		defer s.conn.Unsubscribe(sub)
		cfg = sub.Channel()
	}

	tick := s.clock.NewTicker(DefaultInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat monitor stopping")
			return
		case <-tick.Chan():
			s.Check()
		case msg := <-cfg:
			c, ok := msg.Payload.(Config)
			if !ok || c.IntervalMs == 0 {
				continue
			}
			tick.Reset(time.Duration(c.IntervalMs) * time.Millisecond)
			s.log.Info("heartbeat interval set", "interval_ms", c.IntervalMs)
		}
	}
}

// Start runs the monitor until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	go s.serviceLoop(ctx)
	return nil
}

// Check evaluates every watch once. A task that never checked in is
// measured from service start.
func (s *Service) Check() []types.TaskHealth {
	now := s.clock.Now()
	fed := s.src.Fed()
	out := make([]types.TaskHealth, 0, len(s.watches))

	s.mu.Lock()
	for _, w := range s.watches {
		last, ok := fed[w.Task]
		if !ok {
			last = s.start
		}
		silence := now.Sub(last)
		ok = silence <= w.MaxInterval
		switch was := s.healthy[w.Task]; {
		case was && !ok:
			s.log.Error(nil, "task unresponsive", "task", w.Task, "silence", silence)
		case !was && ok:
			s.log.Info("task responding again", "task", w.Task)
		}
		s.healthy[w.Task] = ok
		out = append(out, types.TaskHealth{Name: w.Task, Healthy: ok, Silence: silence})
	}
	s.mu.Unlock()

	if s.conn != nil {
		s.conn.Publish(s.conn.NewMessage(TopicHeartbeat, out, true))
	}
	return out
}

// Healthy reports the result of the last Check for task.
func (s *Service) Healthy(task string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy[task]
}
