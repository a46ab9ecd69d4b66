package queue

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 4; i++ {
		if !q.Send(i, 0) {
			t.Fatalf("send %d failed", i)
		}
	}
	for want := 1; want <= 4; want++ {
		got, ok := q.TryReceive()
		if !ok || got != want {
			t.Fatalf("receive = %d,%v want %d", got, ok, want)
		}
	}
	if _, ok := q.TryReceive(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestZeroTimeoutSendOnFullQueueFailsImmediately(t *testing.T) {
	q := New[int](2)
	q.Send(1, 0)
	q.Send(2, 0)

	start := time.Now()
	if q.Send(3, 0) {
		t.Fatal("send on full queue should fail")
	}
	if time.Since(start) > 5*time.Millisecond {
		t.Fatal("zero-timeout send blocked")
	}
	if q.Len() != 2 || q.Len() > q.Cap() {
		t.Fatalf("len = %d cap = %d", q.Len(), q.Cap())
	}
	if q.Drops() != 1 {
		t.Fatalf("drops = %d, want 1", q.Drops())
	}
}

func TestSendWaitsForSpace(t *testing.T) {
	q := New[int](1)
	q.Send(1, 0)
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.TryReceive()
	}()
	if !q.Send(2, 200*time.Millisecond) {
		t.Fatal("send should succeed once space frees")
	}
}

func TestSendTimesOut(t *testing.T) {
	q := New[int](1)
	q.Send(1, 0)
	start := time.Now()
	if q.Send(2, 10*time.Millisecond) {
		t.Fatal("send should time out")
	}
	if d := time.Since(start); d < 10*time.Millisecond {
		t.Fatalf("returned after %v, before timeout", d)
	}
}

func TestReceiveTimeout(t *testing.T) {
	q := New[string](1)
	if _, ok := q.Receive(5 * time.Millisecond); ok {
		t.Fatal("receive on empty queue should time out")
	}
	go func() {
		time.Sleep(2 * time.Millisecond)
		q.Send("x", 0)
	}()
	v, ok := q.Receive(200 * time.Millisecond)
	if !ok || v != "x" {
		t.Fatalf("receive = %q,%v", v, ok)
	}
}

func TestCloseRejectsAndUnblocks(t *testing.T) {
	q := New[int](1)
	q.Send(1, 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if q.Send(2, time.Second) {
			t.Error("blocked send should fail on close")
		}
	}()
	time.Sleep(5 * time.Millisecond)
	q.Close()
	wg.Wait()

	if !q.Closed() {
		t.Fatal("Closed() = false")
	}
	if q.Send(3, 0) {
		t.Fatal("send after close succeeded")
	}
	if _, ok := q.TryReceive(); ok {
		t.Fatal("receive after close succeeded")
	}
	q.Close()
}

func TestOccupancyNeverExceedsCapUnderConcurrency(t *testing.T) {
	const n = 10
	q := New[int](n)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q.Send(i, 0)
				if l := q.Len(); l > n {
					t.Errorf("len %d > cap %d", l, n)
				}
			}
		}()
	}
	wg.Wait()
	if q.Len() > n {
		t.Fatalf("len %d > cap %d", q.Len(), n)
	}
}
