package pool

import (
	"sync"
	"testing"
	"time"

	"calcpad-go/errcode"
)

type item struct {
	A int
	B string
}

func TestExhaustionAndRelease(t *testing.T) {
	const n = 4
	p := New[item](n)

	hs := make([]Handle, 0, n)
	for i := 0; i < n; i++ {
		h, ok := p.Acquire()
		if !ok {
			t.Fatalf("acquire %d failed", i)
		}
		hs = append(hs, h)
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("acquire N+1 should fail")
	}
	if p.UsedCount() != n {
		t.Fatalf("used = %d, want %d", p.UsedCount(), n)
	}

	if err := p.Release(hs[2]); err != nil {
		t.Fatalf("release: %v", err)
	}
	if p.UsedCount() != n-1 {
		t.Fatalf("used = %d, want %d", p.UsedCount(), n-1)
	}
	if _, ok := p.Acquire(); !ok {
		t.Fatal("one slot should be free again")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("release must free exactly one slot")
	}
}

func TestReleaseResetsContents(t *testing.T) {
	p := New[item](1)
	h, _ := p.Acquire()
	*p.Get(h) = item{A: 7, B: "x"}
	if err := p.Release(h); err != nil {
		t.Fatal(err)
	}
	h2, ok := p.Acquire()
	if !ok {
		t.Fatal("reacquire failed")
	}
	if got := *p.Get(h2); got != (item{}) {
		t.Fatalf("slot not reset: %+v", got)
	}
}

func TestStaleHandle(t *testing.T) {
	p := New[item](1)
	h, _ := p.Acquire()
	_ = p.Release(h)

	if p.Get(h) != nil {
		t.Fatal("Get on released handle should be nil")
	}
	if err := p.Release(h); err != errcode.StaleHandle {
		t.Fatalf("double release err = %v", err)
	}

	h2, _ := p.Acquire()
	if h2 == h {
		t.Fatal("generation should change between checkouts")
	}
	if p.Get(h) != nil {
		t.Fatal("old handle must not reach the reissued slot")
	}
	if p.Get(0) != nil {
		t.Fatal("zero handle should be invalid")
	}
}

func TestAcquireFailsWhenLockHeld(t *testing.T) {
	p := New[item](2, WithLockTimeout(5*time.Millisecond))
	if !p.lock() {
		t.Fatal("could not take lock")
	}
	start := time.Now()
	if _, ok := p.Acquire(); ok {
		t.Fatal("acquire should fail while lock is held")
	}
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Fatalf("acquire blocked for %v", d)
	}
	p.unlock()
	if _, ok := p.Acquire(); !ok {
		t.Fatal("acquire after unlock failed")
	}
}

func TestClose(t *testing.T) {
	p := New[item](2)
	h, _ := p.Acquire()
	p.Close()
	if _, ok := p.Acquire(); ok {
		t.Fatal("acquire after close succeeded")
	}
	if err := p.Release(h); err != nil {
		t.Fatalf("release after close: %v", err)
	}
}

func TestNoDoubleCheckoutUnderConcurrency(t *testing.T) {
	const n = 8
	p := New[item](n, WithLockTimeout(time.Second))

	var mu sync.Mutex
	live := map[uint16]bool{}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h, ok := p.Acquire()
				if !ok {
					continue
				}
				mu.Lock()
				if live[h.index()] {
					t.Errorf("slot %d checked out twice", h.index())
				}
				live[h.index()] = true
				mu.Unlock()

				mu.Lock()
				delete(live, h.index())
				mu.Unlock()
				if err := p.Release(h); err != nil {
					t.Errorf("release: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if p.UsedCount() != 0 {
		t.Fatalf("used = %d after all releases", p.UsedCount())
	}
}
