package display

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/pool"
	"calcpad-go/x/queue"
)

type recorder struct {
	*LogApp
	order []string
}

func (r *recorder) HandleKeyEvent(ev types.KeyEvent) {
	r.order = append(r.order, "key")
	r.LogApp.HandleKeyEvent(ev)
}

func (r *recorder) HandleDisplayUpdate(u types.DisplayUpdate) {
	r.order = append(r.order, "update")
	r.LogApp.HandleDisplayUpdate(u)
}

type fader struct{ calls int }

func (f *fader) Update(time.Time) bool { f.calls++; return false }

type fixture struct {
	clock   clockwork.FakeClock
	keys    *queue.Queue[types.KeyEvent]
	updates *queue.Queue[pool.Handle]
	pool    *pool.Pool[types.DisplayUpdate]
	app     *recorder
	fade    *fader
	ticks   int
	sub     *bus.Subscription
	svc     *Service
	pub     *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   clockwork.NewFakeClock(),
		keys:    queue.New[types.KeyEvent](10),
		updates: queue.New[pool.Handle](10),
		pool:    pool.New[types.DisplayUpdate](10),
		app:     &recorder{LogApp: NewLogApp(nil)},
		fade:    &fader{},
	}
	b := bus.NewBus(16)
	f.sub = b.NewConnection("tap").Subscribe(TopicKeyEvent)
	svc, err := New(Options{
		Keys: f.keys, Updates: f.updates, Pool: f.pool,
		App:       f.app,
		GUI:       TickerFunc(func(time.Time) { f.ticks++ }),
		Backlight: f.fade,
		Conn:      b.NewConnection("display"),
		Clock:     f.clock,
	})
	require.NoError(t, err)
	f.svc = svc
	f.pub = NewPublisher(f.pool, f.updates, f.clock, nil)
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.Is(err, errcode.InvalidParams))
}

func TestCycleDrainsKeysBeforeUpdates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pub.Text("hello"))
	require.True(t, f.keys.Send(types.KeyEvent{Type: types.KeyPress, Key: 4}, 0))
	require.True(t, f.keys.Send(types.KeyEvent{Type: types.KeyRelease, Key: 4}, 0))

	require.NoError(t, f.svc.Cycle(context.Background(), 0))
	assert.Equal(t, []string{"key", "key", "update"}, f.app.order)
	assert.Equal(t, "hello", f.app.Text())
	assert.Zero(t, f.pool.UsedCount(), "slot released after forwarding")
	assert.Equal(t, uint32(2), f.svc.KeyEvents())
	assert.Equal(t, uint32(1), f.svc.Updates())

	assert.Equal(t, 1, f.ticks)
	assert.Equal(t, 1, f.fade.calls)
	assert.Equal(t, uint32(1), f.app.Refreshes())
}

func TestKeyEventsPublishedOnBus(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.keys.Send(types.KeyEvent{Type: types.KeyLongPress, Key: 9}, 0))
	require.NoError(t, f.svc.Cycle(context.Background(), 0))

	var got []types.KeyEvent
	f.sub.Poll(func(m *bus.Message) {
		assert.False(t, m.Retained)
		got = append(got, m.Payload.(types.KeyEvent))
	})
	require.Len(t, got, 1)
	assert.Equal(t, types.LogicalKey(9), got[0].Key)
}

func TestStaleHandleReported(t *testing.T) {
	f := newFixture(t)
	h, ok := f.pool.Acquire()
	require.True(t, ok)
	require.NoError(t, f.pool.Release(h))
	require.True(t, f.updates.Send(h, 0))

	err := f.svc.Cycle(context.Background(), 0)
	assert.True(t, errors.Is(err, errcode.StaleHandle))
	assert.Equal(t, uint32(1), f.svc.Stale())
}

func TestPublisherPoolExhaustion(t *testing.T) {
	f := newFixture(t)
	p := pool.New[types.DisplayUpdate](2)
	q := queue.New[pool.Handle](8)
	pub := NewPublisher(p, q, f.clock, nil)

	require.NoError(t, pub.Text("a"))
	require.NoError(t, pub.Text("b"))
	err := pub.Text("c")
	assert.True(t, errors.Is(err, errcode.PoolExhausted))
	assert.Equal(t, uint32(1), pub.Misses())
	assert.Equal(t, 2, q.Len())
}

func TestPublisherQueueFullReleasesSlot(t *testing.T) {
	f := newFixture(t)
	p := pool.New[types.DisplayUpdate](4)
	q := queue.New[pool.Handle](1)
	pub := NewPublisher(p, q, f.clock, nil)

	require.NoError(t, pub.State(types.StateSleeping))
	err := pub.Text("overflow")
	assert.True(t, errors.Is(err, errcode.QueueFull))
	assert.Equal(t, 1, p.UsedCount(), "failed post gives its slot back")
	assert.Equal(t, uint32(1), pub.Drops())
}

func TestPostStampsTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pub.State(types.StateError))
	h, ok := f.updates.TryReceive()
	require.True(t, ok)
	u := f.pool.Get(h)
	require.NotNil(t, u)
	assert.Equal(t, f.clock.Now(), u.Timestamp)
	assert.Equal(t, int32(types.StateError), u.Value)
}

func TestDrainBoundedByCapacity(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		require.True(t, f.keys.Send(types.KeyEvent{Type: types.KeyRepeat, Key: 1}, 0))
	}
	require.NoError(t, f.svc.Cycle(context.Background(), 0))
	assert.Zero(t, f.keys.Len())
	_, n := f.app.LastKey()
	assert.Equal(t, uint32(10), n)
}
