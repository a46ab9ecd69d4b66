package keymatrix

import "sync"

// Fake165 models a 24-bit 74HC165 chain. While PL is low the parallel
// inputs are latched continuously; each rising CP edge with CE low and PL
// high shifts the register left. Data presents bit 23.
type Fake165 struct {
	mu       sync.Mutex
	parallel uint32
	shift    uint32
	load     bool // PL level
	clock    bool // CP level
	enable   bool // CE level
	latches  int
	edges    int
}

// NewFake165 returns a chain with all inputs high (no key pressed).
func NewFake165() *Fake165 {
	return &Fake165{parallel: Released, load: true, enable: true}
}

// SetInputs sets the parallel input word.
func (f *Fake165) SetInputs(w uint32) {
	f.mu.Lock()
	f.parallel = w & Mask
	if !f.load {
		f.shift = f.parallel
	}
	f.mu.Unlock()
}

// Pins returns lines wired to the fake.
func (f *Fake165) Pins() Pins {
	return Pins{
		Load:   OutputFunc(f.setLoad),
		Clock:  OutputFunc(f.setClock),
		Enable: OutputFunc(f.setEnable),
		Data:   InputFunc(f.data),
	}
}

// Latches reports how many PL low pulses were seen.
func (f *Fake165) Latches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latches
}

// Edges reports how many shifting clock edges were seen.
func (f *Fake165) Edges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edges
}

func (f *Fake165) setLoad(high bool) {
	f.mu.Lock()
	if !high {
		if f.load {
			f.latches++
		}
		f.shift = f.parallel
	}
	f.load = high
	f.mu.Unlock()
}

func (f *Fake165) setClock(high bool) {
	f.mu.Lock()
	if high && !f.clock && f.load && !f.enable {
		f.shift = (f.shift << 1) & Mask
		f.edges++
	}
	f.clock = high
	f.mu.Unlock()
}

func (f *Fake165) setEnable(high bool) {
	f.mu.Lock()
	f.enable = high
	f.mu.Unlock()
}

func (f *Fake165) data() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shift&(1<<(Bits-1)) != 0
}
