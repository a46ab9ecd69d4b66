package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
)

type failingStore struct{ *MemoryStore }

func (f *failingStore) Save(types.Settings) error { return errors.New("flash busy") }

func newManager(t *testing.T) (*Manager, *MemoryStore, *bus.Connection) {
	t.Helper()
	b := bus.NewBus(16)
	store := NewMemoryStore()
	m := NewManager(store, b.NewConnection("config"), nil)
	require.NoError(t, m.Load())
	return m, store, b.NewConnection("test")
}

func TestSetGetRoundTrip(t *testing.T) {
	m, _, _ := newManager(t)

	require.NoError(t, m.Set("keypad.repeat_delay_ms", "750"))
	v, err := m.Get("keypad.repeat_delay_ms")
	require.NoError(t, err)
	assert.Equal(t, "750", v)
	assert.True(t, m.Dirty())
	assert.Equal(t, uint16(750), m.Snapshot().Keypad.RepeatDelayMs)

	require.NoError(t, m.Set("led.mode", "BREATH"))
	assert.Equal(t, types.LEDBreath, m.Snapshot().LED.Mode)

	require.NoError(t, m.Set("buzzer.dual_tone", "on"))
	assert.True(t, m.Snapshot().Buzzer.DualTone)

	require.NoError(t, m.Set("system.log_level", "WARNING"))
	assert.Equal(t, "warn", m.Snapshot().System.LogLevel)
}

func TestSetClampsIntoRange(t *testing.T) {
	m, _, _ := newManager(t)

	require.NoError(t, m.Set("backlight.percent", "250"))
	assert.Equal(t, uint8(100), m.Snapshot().Backlight.Percent)

	require.NoError(t, m.Set("keypad.repeat_rate_ms", "1"))
	assert.Equal(t, uint16(20), m.Snapshot().Keypad.RepeatRateMs)

	require.NoError(t, m.Set("buzzer.volume", "-4"))
	assert.Equal(t, types.VolumeMute, m.Snapshot().Buzzer.Volume)
}

func TestSetRejectsUnknownAndMalformed(t *testing.T) {
	m, _, _ := newManager(t)

	err := m.Set("keypad.nope", "1")
	assert.True(t, errors.Is(err, errcode.NotFound))
	_, err = m.Get("nope")
	assert.True(t, errors.Is(err, errcode.NotFound))

	for key, v := range map[string]string{
		"led.brightness":     "bright",
		"led.mode":           "disco",
		"buzzer.mode":        "organ",
		"system.auto_save":   "maybe",
		"system.log_level":   "loud",
		"keypad.repeat_keys": "1,23",
	} {
		err := m.Set(key, v)
		assert.Truef(t, errors.Is(err, errcode.InvalidParams), "%s=%s: %v", key, v, err)
	}
	assert.False(t, m.Dirty())
}

func TestRepeatKeysSortedAndDeduplicated(t *testing.T) {
	m, _, _ := newManager(t)

	require.NoError(t, m.Set("keypad.repeat_keys", " 17, 3,17 ,5"))
	assert.Equal(t, []uint8{3, 5, 17}, m.Snapshot().Keypad.RepeatKeys)
	v, _ := m.Get("keypad.repeat_keys")
	assert.Equal(t, "3,5,17", v)

	require.NoError(t, m.Set("keypad.repeat_keys", "none"))
	assert.Empty(t, m.Snapshot().Keypad.RepeatKeys)
}

func TestSnapshotIsACopy(t *testing.T) {
	m, _, _ := newManager(t)
	require.NoError(t, m.Set("keypad.repeat_keys", "1,2"))

	s := m.Snapshot()
	s.Keypad.RepeatKeys[0] = 9
	assert.Equal(t, []uint8{1, 2}, m.Snapshot().Keypad.RepeatKeys)
}

func TestSetPublishesRetainedSection(t *testing.T) {
	m, _, conn := newManager(t)

	sub := conn.Subscribe(bus.T("config", "backlight"))
	var got []types.BacklightSettings
	drain := func() {
		sub.Poll(func(msg *bus.Message) {
			if b, ok := msg.Payload.(types.BacklightSettings); ok {
				got = append(got, b)
			}
		})
	}
	drain()
	require.Len(t, got, 1, "retained value replayed on subscribe")
	assert.Equal(t, uint8(100), got[0].Percent)

	require.NoError(t, m.Set("backlight.percent", "40"))
	drain()
	require.Len(t, got, 2)
	assert.Equal(t, uint8(40), got[1].Percent)
}

func TestLoadPublishesEverySection(t *testing.T) {
	_, _, conn := newManager(t)
	sub := conn.Subscribe(bus.T("config", "+"))
	seen := map[string]bool{}
	sub.Poll(func(msg *bus.Message) { seen[msg.Topic[1]] = true })
	for _, s := range Sections {
		assert.Truef(t, seen[s], "section %s not retained", s)
	}
}

func TestSaveIfDirtyHonoursAutoSave(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()

	saved, err := m.SaveIfDirty(ctx)
	require.NoError(t, err)
	assert.False(t, saved, "clean settings are not written")

	require.NoError(t, m.Set("sleep.timeout_ms", "30000"))
	saved, err = m.SaveIfDirty(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.False(t, m.Dirty())
	assert.Equal(t, 1, store.Saves())
	assert.Equal(t, uint32(1), m.Saves())

	loaded, _ := store.Load()
	assert.Equal(t, uint32(30000), loaded.Sleep.TimeoutMs)

	require.NoError(t, m.Set("system.auto_save", "off"))
	saved, err = m.SaveIfDirty(ctx)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.True(t, m.Dirty())

	require.NoError(t, m.Save(ctx))
	assert.False(t, m.Dirty())
	assert.Equal(t, 2, store.Saves())
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, nil, nil)
	require.NoError(t, m.Load())
	require.NoError(t, m.Set("led.enabled", "false"))

	_, err := m.SaveIfDirty(context.Background())
	require.Error(t, err)
	assert.True(t, m.Dirty())
	assert.Zero(t, m.Saves())
}

func TestWritesTimeOutWhenLocked(t *testing.T) {
	m, _, _ := newManager(t)
	require.True(t, m.sem.TryAcquire(1))

	start := time.Now()
	err := m.Set("led.brightness", "10")
	assert.True(t, errors.Is(err, errcode.Timeout), "got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), LockTimeout)

	m.sem.Release(1)
	assert.NoError(t, m.Set("led.brightness", "10"))
}

func TestResetAndAdopt(t *testing.T) {
	m, _, _ := newManager(t)

	s := m.Snapshot()
	s.LED.Brightness = 12
	require.NoError(t, m.Adopt(s))
	assert.Equal(t, uint8(12), m.Snapshot().LED.Brightness)
	assert.False(t, m.Dirty(), "adopted settings are already persisted")

	require.NoError(t, m.Reset())
	assert.Equal(t, types.DefaultSettings().LED, m.Snapshot().LED)
	assert.True(t, m.Dirty())
}

func TestNormalize(t *testing.T) {
	var s types.Settings
	s.Keypad.RepeatDelayMs = 1
	s.Keypad.RepeatKeys = []uint8{40, 2}
	s.LED.Mode = "strobe"
	s.Buzzer.Volume = 9
	s.Sleep.TimeoutMs = 10_000_000

	n := Normalize(s)
	d := types.DefaultSettings()
	assert.Equal(t, uint16(50), n.Keypad.RepeatDelayMs)
	assert.Nil(t, n.Keypad.RepeatKeys)
	assert.Equal(t, d.LED.Mode, n.LED.Mode)
	assert.Equal(t, d.Buzzer.Mode, n.Buzzer.Mode)
	assert.Equal(t, types.VolumeHigh, n.Buzzer.Volume)
	assert.Equal(t, uint32(3_600_000), n.Sleep.TimeoutMs)
	assert.Equal(t, d.System.LogLevel, n.System.LogLevel)

	assert.Equal(t, d, Normalize(d))
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "sleep.timeout_ms")
	assert.IsIncreasing(t, keys)
}
