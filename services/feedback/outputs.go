package feedback

import (
	"image/color"
	"sync"
)

// MemoryStrip keeps the last frame written. The simulated board uses it.
type MemoryStrip struct {
	mu     sync.Mutex
	frame  []color.RGBA
	writes int
}

func (s *MemoryStrip) WriteColors(frame []color.RGBA) error {
	s.mu.Lock()
	s.frame = append(s.frame[:0], frame...)
	s.writes++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStrip) Frame() []color.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]color.RGBA(nil), s.frame...)
}

func (s *MemoryStrip) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Note is one tone started on a MemoryTone.
type Note struct {
	Hz   uint16
	Duty uint8
}

// MemoryTone records tones instead of sounding them.
type MemoryTone struct {
	mu      sync.Mutex
	notes   []Note
	playing bool
}

func (t *MemoryTone) Play(hz uint16, duty uint8) {
	t.mu.Lock()
	t.notes = append(t.notes, Note{Hz: hz, Duty: duty})
	t.playing = true
	t.mu.Unlock()
}

func (t *MemoryTone) Stop() {
	t.mu.Lock()
	t.playing = false
	t.mu.Unlock()
}

func (t *MemoryTone) Notes() []Note {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Note(nil), t.notes...)
}

func (t *MemoryTone) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}
