// Package bridge streams bus traffic over a framed byte link (UART,
// websocket) and routes frames from the peer back onto the local bus.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/x/logx"
)

var (
	TopicState  = bus.T("bridge", "state")
	TopicConfig = bus.T("config", "bridge")
)

// RxPrefix is prepended to topics received from the peer.
var RxPrefix = bus.T("bridge", "rx")

// DefaultTopics are forwarded when a config names none.
var DefaultTopics = []string{"keypad/event", "system/#"}

const pingEvery = 5 * time.Second

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is accepted on "config/bridge" either as a value or as JSON.
type Config struct {
	Transport TransportConfig `json:"transport"`
	Topics    []string        `json:"topics,omitempty"`
}

type TransportConfig struct {
	// "uart", "ws", or a name registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
	URL  string      `json:"url,omitempty"`
}

// UARTConfig is handed to the platform dialler.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// LinkState is the retained payload on "bridge/state".
type LinkState struct {
	Level  string `json:"level"` // up, degraded, error, idle
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn  *bus.Connection
	clock clockwork.Clock
	log   logx.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value // Config
}

func New(conn *bus.Connection, clock clockwork.Clock, log logx.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Service{conn: conn, clock: clock, log: log}
}

// Run waits for config and supervises one link. It blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(TopicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

// Config returns the config of the current link.
func (s *Service) Config() (Config, bool) {
	c, ok := s.curCfg.Load().(Config)
	return c, ok
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	link := NewLink(s.conn, cfg.Topics, s.clock, s.log)

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		if ctx.Err() != nil {
			return
		}
		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", err)
			if !s.sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		s.log.Info("bridge link up", "transport", tr.String())
		err = link.Serve(ctx, rwc)
		_ = rwc.Close()
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", err)
			s.log.Warn(err, "bridge link lost", "retry_in", delay)
			if !s.sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		s.publishState("idle", "link_closed", nil)
		return
	}
}

func (s *Service) publishState(level, status string, err error) {
	st := LinkState{Level: level, Status: status, TS: s.clock.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(TopicState, st, true))
}

func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

// -----------------------------------------------------------------------------
// Link
// -----------------------------------------------------------------------------

// Envelope is the JSON body of a pub frame.
type Envelope struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Retained bool            `json:"retained,omitempty"`
}

// Link forwards local topics to one peer and publishes the peer's frames
// under RxPrefix.
type Link struct {
	conn   *bus.Connection
	topics []bus.Topic
	clock  clockwork.Clock
	log    logx.Logger

	sent     atomic.Uint32
	received atomic.Uint32
}

func NewLink(conn *bus.Connection, topics []string, clock clockwork.Clock, log logx.Logger) *Link {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logx.Nop()
	}
	l := &Link{conn: conn, clock: clock, log: log}
	for _, t := range topics {
		if tp := bus.Parse(t); len(tp) > 0 {
			l.topics = append(l.topics, tp)
		}
	}
	return l
}

// Serve owns rwc until ctx is cancelled (nil), the peer sends close (nil)
// or the link fails.
func (l *Link) Serve(ctx context.Context, rwc io.ReadWriter) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	out := make(chan *bus.Message, 16)
	subs := make([]*bus.Subscription, 0, len(l.topics))
	for _, t := range l.topics {
		subs = append(subs, l.conn.Subscribe(t))
	}
	defer func() {
		for _, sub := range subs {
			l.conn.Unsubscribe(sub)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, sub := range subs {
		go fanIn(ctx, sub, out)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.readLoop(rd, wr) }()

	tick := l.clock.NewTicker(pingEvery)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case <-tick.Chan():
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		case msg := <-out:
			body, err := encodeEnvelope(msg)
			if err != nil {
				l.log.Warn(err, "bridge cannot encode payload", "topic", msg.Topic.String())
				continue
			}
			if err := wr.WriteFrame(Frame{Type: framePub, Payload: body}); err != nil {
				return err
			}
			l.sent.Add(1)
		}
	}
}

func fanIn(ctx context.Context, sub *bus.Subscription, out chan<- *bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Link) readLoop(rd *framedReader, wr *framedWriter) error {
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			return err
		}
		switch f.Type {
		case framePing:
			if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case framePong:
		case frameClose:
			return nil
		case framePub:
			var env Envelope
			if err := json.Unmarshal(f.Payload, &env); err != nil {
				l.log.Warn(err, "bridge dropped malformed frame")
				continue
			}
			t := bus.Parse(env.Topic)
			if len(t) == 0 {
				continue
			}
			topic := append(append(bus.Topic(nil), RxPrefix...), t...)
			l.conn.Publish(l.conn.NewMessage(topic, env.Payload, false))
			l.received.Add(1)
		default:
			l.log.Debug("bridge ignored frame", "type", f.Type)
		}
	}
}

func (l *Link) Sent() uint32     { return l.sent.Load() }
func (l *Link) Received() uint32 { return l.received.Load() }

func encodeEnvelope(msg *bus.Message) ([]byte, error) {
	env := Envelope{Topic: msg.Topic.String(), Retained: msg.Retained}
	if msg.Payload != nil {
		p, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, err
		}
		env.Payload = p
	}
	return json.Marshal(env)
}

// ReadFrames reads pub frames from a bridge peer until the stream ends,
// calling fn for each envelope. Pings are answered.
func ReadFrames(ctx context.Context, rw io.ReadWriter, fn func(Envelope)) error {
	rd := newFramedReader(rw)
	wr := newFramedWriter(rw)
	for ctx.Err() == nil {
		f, err := rd.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch f.Type {
		case framePing:
			if err := wr.WriteFrame(Frame{Type: framePong}); err != nil {
				return err
			}
		case frameClose:
			return nil
		case framePub:
			var env Envelope
			if err := json.Unmarshal(f.Payload, &env); err == nil {
				fn(env)
			}
		}
	}
	return ctx.Err()
}

// Send publishes payload on topic at the peer, which sees it under RxPrefix.
func Send(w io.Writer, topic string, payload any) error {
	body, err := encodeEnvelope(&bus.Message{Topic: bus.Parse(topic), Payload: payload})
	if err != nil {
		return err
	}
	return newFramedWriter(w).WriteFrame(Frame{Type: framePub, Payload: body})
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not set")
)

// RegisterTransport adds a transport by name.
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, errcode.New(errcode.Unsupported, "bridge.transport", "unknown transport type "+cfg.Type)
	}
}

// UARTDial is injected by platform code and opens the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errcode.New(errcode.InvalidParams, "bridge.transport", "uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a type byte, a big-endian 16-bit length and the payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }

type framedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame writes header and payload in one call so frames from
// concurrent writers never interleave.
func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return errcode.New(errcode.InvalidParams, "bridge.WriteFrame", "frame too large")
	}
	buf := make([]byte, 3+len(f.Payload))
	buf[0] = f.Type
	buf[1] = byte(len(f.Payload) >> 8)
	buf[2] = byte(len(f.Payload))
	copy(buf[3:], f.Payload)
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, errcode.New(errcode.InvalidParams, "bridge.config", "unsupported config payload")
	}
	return cfg, nil
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}
