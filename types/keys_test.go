package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"calcpad-go/errcode"
)

func TestKeyEventJSONRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, typ := range []KeyEventType{KeyPress, KeyRelease, KeyLongPress, KeyRepeat, KeyCombo} {
		in := KeyEvent{Type: typ, Key: 1, Timestamp: ts}
		if typ == KeyCombo {
			in.Combo = [MaxCombo]LogicalKey{1, 4, 9}
			in.ComboCount = 3
		}
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %v: %v", typ, err)
		}
		var out KeyEvent
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if out.Type != in.Type || out.Key != in.Key || out.Combo != in.Combo ||
			out.ComboCount != in.ComboCount || !out.Timestamp.Equal(ts) {
			t.Fatalf("round trip %s: got %+v", raw, out)
		}
	}
}

func TestKeyEventTypeUnknownText(t *testing.T) {
	var typ KeyEventType
	if err := typ.UnmarshalText([]byte("double_tap")); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("UnmarshalText(double_tap) = %v", err)
	}
	if err := json.Unmarshal([]byte(`{"type":"unknown"}`), &KeyEvent{}); err == nil {
		t.Fatal("unknown type decoded")
	}
}
