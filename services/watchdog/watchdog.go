// Package watchdog supervises task liveness on top of a hardware or
// software watchdog.
package watchdog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/errcode"
	"calcpad-go/x/logx"
)

const DefaultTimeout = 30 * time.Second

// Hardware is the reset timer itself.
type Hardware interface {
	Configure(timeout time.Duration) error
	Start() error
	Update()
}

// Limited is implemented by hardware that cannot count to arbitrary
// timeouts.
type Limited interface {
	MaxTimeout() time.Duration
}

type Option func(*Supervisor)

func WithClock(c clockwork.Clock) Option { return func(s *Supervisor) { s.clock = c } }

// Supervisor records which task fed the watchdog and when. Any feed keeps
// the hardware alive.
type Supervisor struct {
	hw        Hardware
	requested time.Duration
	timeout   time.Duration
	clock     clockwork.Clock
	log       logx.Logger

	armed atomic.Bool
	mu    sync.Mutex
	fed   map[string]time.Time
}

func NewSupervisor(hw Hardware, timeout time.Duration, log logx.Logger, opts ...Option) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logx.Nop()
	}
	s := &Supervisor{
		hw:        hw,
		requested: timeout,
		timeout:   timeout,
		clock:     clockwork.NewRealClock(),
		log:       log,
		fed:       map[string]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Arm configures and starts the hardware. A timeout beyond what the
// hardware supports is clamped to its maximum.
func (s *Supervisor) Arm() error {
	const op = "watchdog.Arm"
	if s.hw == nil {
		return errcode.New(errcode.Unsupported, op, "no watchdog hardware")
	}
	if s.armed.Load() {
		return nil
	}
	if l, ok := s.hw.(Limited); ok && s.requested > l.MaxTimeout() {
		s.timeout = l.MaxTimeout()
		s.log.Warn(nil, "watchdog timeout clamped to hardware maximum",
			"requested", s.requested, "effective", s.timeout)
	}
	if err := s.hw.Configure(s.timeout); err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	if err := s.hw.Start(); err != nil {
		return errcode.Wrap(errcode.Error, op, err)
	}
	s.armed.Store(true)
	s.log.Info("watchdog armed", "timeout", s.timeout)
	return nil
}

// Feed is called by each task once per iteration.
func (s *Supervisor) Feed(task string) {
	now := s.clock.Now()
	s.mu.Lock()
	s.fed[task] = now
	s.mu.Unlock()
	if s.armed.Load() {
		s.hw.Update()
	}
}

func (s *Supervisor) LastFed(task string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.fed[task]
	return t, ok
}

// Fed returns a copy of the feed history.
func (s *Supervisor) Fed() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.fed))
	for k, v := range s.fed {
		out[k] = v
	}
	return out
}

func (s *Supervisor) Armed() bool            { return s.armed.Load() }
func (s *Supervisor) Timeout() time.Duration { return s.timeout }
