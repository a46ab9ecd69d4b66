package display

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
	"calcpad-go/x/pool"
	"calcpad-go/x/queue"
)

// Publisher is the producer side of the display-update queue. Updates are
// staged in pool slots and only the handle travels through the queue.
type Publisher struct {
	pool  *pool.Pool[types.DisplayUpdate]
	q     *queue.Queue[pool.Handle]
	clock clockwork.Clock
	log   logx.Logger
	limit *logx.Limiter

	misses atomic.Uint32
	drops  atomic.Uint32
}

func NewPublisher(p *pool.Pool[types.DisplayUpdate], q *queue.Queue[pool.Handle], clock clockwork.Clock, log logx.Logger) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Publisher{pool: p, q: q, clock: clock, log: log, limit: logx.NewLimiter(time.Second)}
}

// Post copies u into a pool slot and enqueues its handle without waiting.
// A zero Timestamp is filled from the clock.
func (p *Publisher) Post(u types.DisplayUpdate) error {
	h, ok := p.pool.Acquire()
	if !ok {
		p.misses.Add(1)
		p.warn("pool", errcode.PoolExhausted)
		return errcode.New(errcode.PoolExhausted, "display.Post", "no free update slot")
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = p.clock.Now()
	}
	*p.pool.Get(h) = u
	if !p.q.Send(h, 0) {
		_ = p.pool.Release(h)
		p.drops.Add(1)
		p.warn("queue", errcode.QueueFull)
		return errcode.New(errcode.QueueFull, "display.Post", "update queue full")
	}
	return nil
}

// Text posts a text update.
func (p *Publisher) Text(s string) error {
	u := types.DisplayUpdate{Kind: types.DisplayText}
	u.SetText(s)
	return p.Post(u)
}

// State posts a system state change.
func (p *Publisher) State(st types.SystemState) error {
	return p.Post(types.DisplayUpdate{Kind: types.DisplayState, Value: int32(st)})
}

func (p *Publisher) warn(key string, err error) {
	if ok, n := p.limit.Allow(key, p.clock.Now()); ok {
		p.log.Warn(err, "display update dropped", "suppressed", n)
	}
}

func (p *Publisher) Misses() uint32 { return p.misses.Load() }
func (p *Publisher) Drops() uint32  { return p.drops.Load() }
