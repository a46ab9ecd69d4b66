package backlight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcpad-go/bus"
	"calcpad-go/types"
)

type recorder struct{ levels []uint8 }

func (r *recorder) SetLevel(l uint8) { r.levels = append(r.levels, l) }

var t0 = time.Unix(100, 0)

func TestLinearFade(t *testing.T) {
	out := &recorder{}
	c := New(out)
	c.SetPercent(100, 500*time.Millisecond)
	assert.Equal(t, uint8(255), c.Target())

	assert.False(t, c.Update(t0), "fade starts at level 0")
	assert.True(t, c.Update(t0.Add(250*time.Millisecond)))
	assert.Equal(t, uint8(127), c.Level())
	assert.True(t, c.Update(t0.Add(500*time.Millisecond)))
	assert.Equal(t, uint8(255), c.Level())
	assert.False(t, c.Update(t0.Add(time.Second)))
	assert.Equal(t, []uint8{127, 255}, out.levels)
}

func TestPercentClampsAndMaps(t *testing.T) {
	c := New(nil)
	c.SetPercent(150, time.Millisecond)
	assert.Equal(t, uint8(100), c.Percent())
	c.SetPercent(50, time.Millisecond)
	assert.Equal(t, uint8(128), c.Target())
}

func TestDimAndRestore(t *testing.T) {
	c := New(&recorder{})
	c.SetPercent(80, 10*time.Millisecond)
	c.Update(t0)
	c.Update(t0.Add(time.Second))
	require.Equal(t, uint8(204), c.Level())

	c.Dim()
	c.Dim()
	c.Update(t0.Add(2 * time.Second))
	c.Update(t0.Add(3 * time.Second))
	assert.Zero(t, c.Level())

	c.Restore()
	c.Update(t0.Add(4 * time.Second))
	c.Update(t0.Add(5 * time.Second))
	assert.Equal(t, uint8(204), c.Level())
	assert.Equal(t, uint8(80), c.Percent())
}

func TestSettingsFromBus(t *testing.T) {
	b := bus.NewBus(4)
	c := New(nil)
	c.Attach(b.NewConnection("backlight"))
	pub := b.NewConnection("config")
	pub.Publish(pub.NewMessage(bus.T("config", "backlight"), types.BacklightSettings{Percent: 40, FadeMs: 100}, true))

	c.Update(t0)
	c.Update(t0.Add(100 * time.Millisecond))
	assert.Equal(t, uint8(102), c.Level())

	// while dimmed, new settings only change the level restored on wake
	c.Dim()
	pub.Publish(pub.NewMessage(bus.T("config", "backlight"), types.BacklightSettings{Percent: 100, FadeMs: 100}, true))
	c.Update(t0.Add(time.Second))
	c.Update(t0.Add(2 * time.Second))
	assert.Zero(t, c.Level())
	c.Restore()
	c.Update(t0.Add(3 * time.Second))
	c.Update(t0.Add(4 * time.Second))
	assert.Equal(t, uint8(255), c.Level())
}
