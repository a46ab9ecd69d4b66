package config

import (
	"sync"

	"calcpad-go/types"
)

// MemoryStore keeps settings in RAM, starting from the factory defaults.
type MemoryStore struct {
	mu    sync.Mutex
	s     types.Settings
	saves int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: types.DefaultSettings()}
}

func (m *MemoryStore) Load() (types.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *MemoryStore) Save(s types.Settings) error {
	m.mu.Lock()
	m.s = s.Clone()
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves counts calls to Save.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
