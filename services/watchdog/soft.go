package watchdog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/errcode"
)

// SoftWatchdog calls onReset when it is not updated within the timeout.
type SoftWatchdog struct {
	clock   clockwork.Clock
	onReset func()

	mu      sync.Mutex
	timeout time.Duration
	timer   clockwork.Timer
	fired   atomic.Bool
}

func NewSoftWatchdog(clock clockwork.Clock, onReset func()) *SoftWatchdog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SoftWatchdog{clock: clock, onReset: onReset}
}

func (w *SoftWatchdog) Configure(timeout time.Duration) error {
	if timeout <= 0 {
		return errcode.New(errcode.InvalidParams, "watchdog.Configure", "timeout must be positive")
	}
	w.mu.Lock()
	w.timeout = timeout
	w.mu.Unlock()
	return nil
}

func (w *SoftWatchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout <= 0 {
		return errcode.New(errcode.InvalidParams, "watchdog.Start", "not configured")
	}
	if w.timer == nil {
		w.timer = w.clock.AfterFunc(w.timeout, w.expire)
	}
	return nil
}

func (w *SoftWatchdog) Update() {
	w.mu.Lock()
	if w.timer != nil && !w.fired.Load() {
		w.timer.Reset(w.timeout)
	}
	w.mu.Unlock()
}

// Stop disarms the watchdog.
func (w *SoftWatchdog) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}

func (w *SoftWatchdog) Fired() bool { return w.fired.Load() }

func (w *SoftWatchdog) expire() {
	if w.fired.Swap(true) {
		return
	}
	if w.onReset != nil {
		w.onReset()
	}
}
