package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/services/config"
	"calcpad-go/services/feedback"
	"calcpad-go/services/sleep"
	"calcpad-go/types"
	"calcpad-go/x/shmring"
)

type rig struct {
	ring  *shmring.Ring
	out   *bytes.Buffer
	con   *Console
	cfg   *config.Manager
	sleep *sleep.Manager
	tone  *feedback.MemoryTone
	shown []string
	boots int
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{ring: shmring.New(256), out: &bytes.Buffer{}, tone: &feedback.MemoryTone{}}
	r.con = New(r.ring, r.out, nil)

	b := bus.NewBus(8)
	r.cfg = config.NewManager(nil, b.NewConnection("config"), nil)
	require.NoError(t, r.cfg.Load())
	clock := clockwork.NewFakeClock()
	r.sleep = sleep.New(clock, time.Minute, nil)
	s := types.DefaultSettings()
	fb := feedback.NewEngine(&feedback.MemoryStrip{}, r.tone, s.LED, s.Buzzer, nil)

	require.NoError(t, RegisterBuiltins(r.con, Deps{
		Config:   r.cfg,
		Sleep:    r.sleep,
		Feedback: fb,
		Clock:    clock,
		Status: func() Status {
			return Status{State: types.StateRunning, Uptime: 90 * time.Second, BootID: "b00t", Errors: 2}
		},
		Tasks: func() []types.TaskInfo {
			return []types.TaskInfo{{Name: "keypad", Priority: 3, Core: 1, Period: 10 * time.Millisecond,
				Stats: types.TaskStats{CycleCount: 42, StackHighWater: 300}}}
		},
		Pools: func() []Usage { return []Usage{{Name: "keyevent", Used: 16, Cap: 20}} },
		Show: func(text string) error {
			r.shown = append(r.shown, text)
			return nil
		},
		Reboot: func() { r.boots++ },
	}))
	return r
}

func (r *rig) feed(s string) int {
	r.ring.WriteFrom([]byte(s))
	return r.con.Process()
}

func TestProcessSplitsLines(t *testing.T) {
	r := newRig(t)
	assert.Equal(t, 2, r.feed("status\r\nHELP\n"))
	out := r.out.String()
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "uptime: 1m30s")
	assert.Contains(t, out, "b00t")
	assert.Contains(t, out, "log_level")
}

func TestPartialLineWaitsForTerminator(t *testing.T) {
	r := newRig(t)
	assert.Zero(t, r.feed("sta"))
	assert.Empty(t, r.out.String())
	assert.Equal(t, 1, r.feed("tus\n"))
	assert.Contains(t, r.out.String(), "running")
}

func TestOverlongLineDiscarded(t *testing.T) {
	r := newRig(t)
	long := strings.Repeat("x", MaxLine+20)
	r.ring = shmring.New(512)
	r.con.in = r.ring
	assert.Zero(t, r.feed(long+"\n"))
	assert.Contains(t, r.out.String(), "line too long")
	assert.Equal(t, uint32(1), r.con.Rejected())

	r.out.Reset()
	assert.Equal(t, 1, r.feed("status\n"), "console recovers after an overlong line")
}

func TestNonPrintableRejected(t *testing.T) {
	r := newRig(t)
	err := r.con.Exec("sta\x01tus")
	assert.True(t, errors.Is(err, errcode.InvalidParams))
	assert.Contains(t, r.out.String(), "invalid characters")
	assert.Zero(t, r.con.Executed())
}

func TestUnknownCommand(t *testing.T) {
	r := newRig(t)
	err := r.con.Exec("frobnicate now")
	assert.True(t, errors.Is(err, errcode.UnknownCommand))
	assert.Contains(t, r.out.String(), "try help")
}

func TestQuotedArgumentsAndShow(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec(`show "3.14  pi" rocks`))
	assert.Equal(t, []string{"3.14  pi rocks"}, r.shown)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newRig(t)
	err := r.con.Register(Command{Name: "Status", Run: func(io.Writer, []string) error { return nil }})
	assert.True(t, errors.Is(err, errcode.Busy))
	err = r.con.Register(Command{Name: "empty"})
	assert.True(t, errors.Is(err, errcode.InvalidParams))
}

func TestExtraCommand(t *testing.T) {
	r := newRig(t)
	var got []string
	require.NoError(t, r.con.Register(Command{Name: "key", Usage: "key down|up <n>", Run: func(_ io.Writer, args []string) error {
		got = args
		return nil
	}}))
	require.NoError(t, r.con.Exec("KEY down 7"))
	assert.Equal(t, []string{"down", "7"}, got)
}

func TestConfigCommands(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("config set keypad.repeat_rate_ms 150"))
	assert.Equal(t, uint16(150), r.cfg.Snapshot().Keypad.RepeatRateMs)

	r.out.Reset()
	require.NoError(t, r.con.Exec("config get keypad.repeat_rate_ms"))
	assert.Equal(t, "keypad.repeat_rate_ms = 150\n", r.out.String())

	r.out.Reset()
	require.NoError(t, r.con.Exec("config"))
	assert.Contains(t, r.out.String(), "sleep.timeout_ms")
	assert.Contains(t, r.out.String(), "unsaved changes")

	require.NoError(t, r.con.Exec("config save"))
	assert.False(t, r.cfg.Dirty())

	err := r.con.Exec("config get nope")
	assert.True(t, errors.Is(err, errcode.NotFound))
}

func TestShortcutCommandsWriteSettings(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("backlight 40"))
	require.NoError(t, r.con.Exec("brightness 300"))
	require.NoError(t, r.con.Exec("buzzer volume 1"))
	require.NoError(t, r.con.Exec("buzzer off"))
	require.NoError(t, r.con.Exec("piano on"))
	require.NoError(t, r.con.Exec("log_level debug"))

	s := r.cfg.Snapshot()
	assert.Equal(t, uint8(40), s.Backlight.Percent)
	assert.Equal(t, uint8(255), s.LED.Brightness)
	assert.Equal(t, types.VolumeLow, s.Buzzer.Volume)
	assert.False(t, s.Buzzer.Enabled)
	assert.Equal(t, types.BuzzerPiano, s.Buzzer.Mode)
	assert.Equal(t, "debug", s.System.LogLevel)

	assert.Error(t, r.con.Exec("backlight"))
	assert.Error(t, r.con.Exec("piano maybe"))
}

func TestBuzzerTestPlaysTone(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("buzzer test"))
	require.NotEmpty(t, r.tone.Notes())
	assert.Equal(t, types.DefaultSettings().Buzzer.PressHz, r.tone.Notes()[0].Hz)
}

func TestSleepCommands(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("sleep now"))
	assert.True(t, r.sleep.IsSleeping())
	require.NoError(t, r.con.Exec("sleep wake"))
	assert.False(t, r.sleep.IsSleeping())

	require.NoError(t, r.con.Exec("sleep timeout 5000"))
	assert.Equal(t, uint32(5000), r.cfg.Snapshot().Sleep.TimeoutMs)

	r.out.Reset()
	require.NoError(t, r.con.Exec("sleep"))
	assert.Contains(t, r.out.String(), "awake")
}

func TestTablesAndUnsupported(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("tasks"))
	assert.Contains(t, r.out.String(), "keypad")
	assert.Contains(t, r.out.String(), "300")
	require.NoError(t, r.con.Exec("pool"))
	assert.Contains(t, r.out.String(), "16/20")

	err := r.con.Exec("mem")
	assert.True(t, errors.Is(err, errcode.Unsupported))
	err = r.con.Exec("queue")
	assert.True(t, errors.Is(err, errcode.Unsupported))
}

func TestRebootCallsHook(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.con.Exec("reboot"))
	assert.Equal(t, 1, r.boots)
	assert.Error(t, r.con.Exec("shutdown"))
}

func TestPumpCopiesUntilEOF(t *testing.T) {
	ring := shmring.New(64)
	require.NoError(t, Pump(context.Background(), strings.NewReader("help\n"), ring))
	assert.Equal(t, 5, ring.Available())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Pump(ctx, strings.NewReader("x"), ring), context.Canceled)
}
