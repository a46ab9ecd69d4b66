package shmring

import (
	"testing"
)

func TestOrderAcrossWrap(t *testing.T) {
	r := New(64)

	const N = 2000
	src := make([]byte, N)
	for i := range src {
		src[i] = byte(i)
	}

	p := src
	dst := make([]byte, 0, N)
	for len(dst) < N {
		if len(p) > 0 {
			step := 7
			if step > len(p) {
				step = len(p)
			}
			n := r.WriteFrom(p[:step])
			p = p[n:]
		}
		var tmp [17]byte
		n := r.ReadInto(tmp[:])
		dst = append(dst, tmp[:n]...)
	}
	for i := 0; i < N; i++ {
		if dst[i] != src[i] {
			t.Fatalf("mismatch at %d: got=%d want=%d", i, dst[i], src[i])
		}
	}
	if r.Overflow() != 0 {
		t.Fatalf("unexpected overflow %d", r.Overflow())
	}
}

func TestOverflowCounted(t *testing.T) {
	r := New(8)
	if n := r.WriteFrom([]byte("0123456789")); n != 8 {
		t.Fatalf("wrote %d, want 8", n)
	}
	if r.Overflow() != 2 {
		t.Fatalf("overflow = %d, want 2", r.Overflow())
	}
	if r.Space() != 0 || r.Available() != 8 {
		t.Fatalf("space=%d avail=%d", r.Space(), r.Available())
	}
}

func TestReadableEdge(t *testing.T) {
	r := New(8)
	select {
	case <-r.Readable():
		t.Fatal("readable before any write")
	default:
	}
	r.WriteFrom([]byte("a"))
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected readable edge")
	}
	// Non-empty -> non-empty does not signal again.
	r.WriteFrom([]byte("b"))
	select {
	case <-r.Readable():
		t.Fatal("unexpected second edge")
	default:
	}
}

func TestDiscard(t *testing.T) {
	r := New(16)
	r.WriteFrom([]byte("hello"))
	if n := r.Discard(); n != 5 {
		t.Fatalf("discarded %d", n)
	}
	if r.Available() != 0 {
		t.Fatal("ring not empty after discard")
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non power-of-two size")
		}
	}()
	New(10)
}
