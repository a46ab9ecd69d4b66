//go:build !(rp2040 || rp2350)

package bridge

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calcpad-go/bus"
	"calcpad-go/types"
)

func TestWebsocketHandlerStreamsState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("ws")
	conn.Publish(conn.NewMessage(bus.T("system", "state"),
		types.StateChange{From: types.StateInitializing, To: types.StateRunning}, true))

	srv := httptest.NewServer(Handler(conn, []string{"system/#"}, nil, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rwc, err := DialWS(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rwc.Close()

	got := make(chan Envelope, 1)
	go ReadFrames(ctx, rwc, func(e Envelope) {
		select {
		case got <- e:
		default:
		}
	})
	select {
	case e := <-got:
		if e.Topic != "system/state" || !e.Retained {
			t.Fatalf("envelope = %+v", e)
		}
		if !strings.Contains(string(e.Payload), `"to":"running"`) {
			t.Fatalf("payload = %s", e.Payload)
		}
	case <-ctx.Done():
		t.Fatalf("no retained state streamed")
	}
}

func TestWebsocketTransportNeedsURL(t *testing.T) {
	if _, err := newTransport(TransportConfig{Type: "ws"}); err == nil {
		t.Fatalf("ws without url accepted")
	}
	tr, err := newTransport(TransportConfig{Type: "ws", URL: "ws://127.0.0.1:1"})
	if err != nil || tr.String() != "ws" {
		t.Fatalf("transport: %v %v", tr, err)
	}
}
