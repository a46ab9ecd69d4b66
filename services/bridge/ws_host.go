//go:build !(rp2040 || rp2350)

package bridge

import (
	"context"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/x/logx"
)

func init() {
	RegisterTransport("ws", func(cfg TransportConfig) (Transport, error) {
		if cfg.URL == "" {
			return nil, errcode.New(errcode.InvalidParams, "bridge.transport", "ws transport requires url")
		}
		return wsTransport{url: cfg.URL}, nil
	})
}

type wsTransport struct{ url string }

func (t wsTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return DialWS(ctx, t.url)
}

func (t wsTransport) String() string { return "ws" }

// DialWS opens a websocket and exposes it as a framed byte stream.
func DialWS(ctx context.Context, url string) (io.ReadWriteCloser, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}

// Handler serves one Link per websocket client.
func Handler(conn *bus.Connection, topics []string, clock clockwork.Clock, log logx.Logger) http.Handler {
	if log == nil {
		log = logx.Nop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Warn(err, "websocket accept failed", "remote", r.RemoteAddr)
			return
		}
		ctx := r.Context()
		nc := websocket.NetConn(ctx, c, websocket.MessageBinary)
		defer nc.Close()

		log.Info("bridge client connected", "remote", r.RemoteAddr)
		link := NewLink(conn, topics, clock, log)
		if err := link.Serve(ctx, nc); err != nil {
			log.Debug("bridge client gone", "remote", r.RemoteAddr, "error", err.Error())
		}
	})
}
