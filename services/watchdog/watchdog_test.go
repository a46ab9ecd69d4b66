package watchdog

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcpad-go/errcode"
)

type fakeHW struct {
	configured time.Duration
	started    bool
	updates    int
	max        time.Duration
	failStart  bool
}

func (h *fakeHW) Configure(d time.Duration) error { h.configured = d; return nil }
func (h *fakeHW) Start() error {
	if h.failStart {
		return errors.New("no")
	}
	h.started = true
	return nil
}
func (h *fakeHW) Update() { h.updates++ }

type limitedHW struct{ fakeHW }

func (h *limitedHW) MaxTimeout() time.Duration { return h.max }

func TestArmAndFeed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hw := &fakeHW{}
	s := NewSupervisor(hw, 0, nil, WithClock(clock))

	s.Feed("keypad")
	assert.Zero(t, hw.updates, "not armed yet")

	require.NoError(t, s.Arm())
	require.NoError(t, s.Arm())
	assert.True(t, hw.started)
	assert.Equal(t, DefaultTimeout, hw.configured)

	clock.Advance(time.Second)
	s.Feed("display")
	assert.Equal(t, 1, hw.updates)

	at, ok := s.LastFed("display")
	require.True(t, ok)
	assert.Equal(t, clock.Now(), at)
	assert.Len(t, s.Fed(), 2)
}

func TestArmClampsToHardwareMaximum(t *testing.T) {
	hw := &limitedHW{fakeHW{max: 8388 * time.Millisecond}}
	s := NewSupervisor(hw, 30*time.Second, nil)
	require.NoError(t, s.Arm())
	assert.Equal(t, 8388*time.Millisecond, hw.configured)
	assert.Equal(t, 8388*time.Millisecond, s.Timeout())
}

func TestArmErrors(t *testing.T) {
	assert.Equal(t, errcode.Unsupported, errcode.Of(NewSupervisor(nil, time.Second, nil).Arm()))

	s := NewSupervisor(&fakeHW{failStart: true}, time.Second, nil)
	assert.Error(t, s.Arm())
	assert.False(t, s.Armed())
}

func TestSoftWatchdogFiresWhenStarved(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var resets atomic.Int32
	w := NewSoftWatchdog(clock, func() { resets.Add(1) })
	require.Error(t, w.Start(), "start before configure")
	require.NoError(t, w.Configure(time.Second))
	require.NoError(t, w.Start())

	for i := 0; i < 5; i++ {
		clock.Advance(900 * time.Millisecond)
		w.Update()
	}
	assert.False(t, w.Fired())

	clock.Advance(time.Second)
	require.Eventually(t, w.Fired, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return resets.Load() == 1 }, time.Second, time.Millisecond)

	w.Update()
	clock.Advance(5 * time.Second)
	assert.Equal(t, int32(1), resets.Load(), "fires once")
}

func TestSoftWatchdogStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewSoftWatchdog(clock, nil)
	require.NoError(t, w.Configure(time.Second))
	require.NoError(t, w.Start())
	w.Stop()
	clock.Advance(10 * time.Second)
	assert.False(t, w.Fired())
	assert.Equal(t, errcode.InvalidParams, errcode.Of(w.Configure(0)))
}

func TestSupervisorDrivesSoftWatchdog(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewSoftWatchdog(clock, nil)
	s := NewSupervisor(w, 2*time.Second, nil, WithClock(clock))
	require.NoError(t, s.Arm())

	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		s.Feed("system")
	}
	assert.False(t, w.Fired())
	clock.Advance(3 * time.Second)
	assert.Eventually(t, w.Fired, time.Second, time.Millisecond)
}
