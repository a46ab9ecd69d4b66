// Package config owns the persistent user settings.
//
// The Manager is the single writer. Every change is published retained on
// config/<section> so services pick it up on their next cycle; readers
// outside the bus take immutable snapshots.
package config

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"calcpad-go/bus"
	"calcpad-go/errcode"
	"calcpad-go/types"
	"calcpad-go/x/logx"
)

// LockTimeout bounds every write to the settings.
const LockTimeout = 100 * time.Millisecond

// Sections in publish order.
var Sections = []string{"keypad", "led", "buzzer", "backlight", "sleep", "system"}

// Store persists settings.
type Store interface {
	Load() (types.Settings, error)
	Save(types.Settings) error
}

type Manager struct {
	store Store
	conn  *bus.Connection
	log   logx.Logger
	sem   *semaphore.Weighted

	mu    sync.RWMutex
	cur   types.Settings
	dirty bool
	saves uint32
}

// NewManager starts from the factory defaults until Load is called. conn
// may be nil when nothing listens.
func NewManager(store Store, conn *bus.Connection, log logx.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Manager{
		store: store,
		conn:  conn,
		log:   log,
		sem:   semaphore.NewWeighted(1),
		cur:   types.DefaultSettings(),
	}
}

func (m *Manager) lock(ctx context.Context, op string) error {
	if m.sem.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return errcode.Wrap(errcode.Timeout, op, err)
	}
	return nil
}

func (m *Manager) unlock() { m.sem.Release(1) }

// Load reads the store, normalises the result and publishes every section.
func (m *Manager) Load() error {
	if err := m.lock(context.Background(), "config.Load"); err != nil {
		return err
	}
	defer m.unlock()

	s, err := m.store.Load()
	if err != nil {
		return errcode.Wrap(errcode.Error, "config.Load", err)
	}
	s = Normalize(s)
	m.mu.Lock()
	m.cur = s
	m.dirty = false
	m.mu.Unlock()
	m.publishAll(s)
	m.log.Info("settings loaded")
	return nil
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() types.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.Clone()
}

// Get returns the string form of a dotted key.
func (m *Manager) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", errcode.New(errcode.NotFound, "config.Get", key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f.get(&m.cur), nil
}

// Set parses, validates and applies one key, then publishes its section.
// Numeric values are clamped into range.
func (m *Manager) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return errcode.New(errcode.NotFound, "config.Set", key)
	}
	if err := m.lock(context.Background(), "config.Set"); err != nil {
		return err
	}
	defer m.unlock()

	m.mu.Lock()
	next := m.cur.Clone()
	if err := f.set(&next, value); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cur = next
	m.dirty = true
	m.mu.Unlock()

	m.publish(section(key), next)
	m.log.Debug("setting changed", "key", key, "value", f.get(&next))
	return nil
}

// Apply replaces every setting and marks them for saving.
func (m *Manager) Apply(s types.Settings) error { return m.replace(s, true, "config.Apply") }

// Adopt replaces every setting with one already persisted, for instance
// after the settings file was edited externally.
func (m *Manager) Adopt(s types.Settings) error { return m.replace(s, false, "config.Adopt") }

// Reset returns to the factory defaults.
func (m *Manager) Reset() error {
	return m.replace(types.DefaultSettings(), true, "config.Reset")
}

func (m *Manager) replace(s types.Settings, dirty bool, op string) error {
	if err := m.lock(context.Background(), op); err != nil {
		return err
	}
	defer m.unlock()
	s = Normalize(s)
	m.mu.Lock()
	m.cur = s
	m.dirty = m.dirty || dirty
	m.mu.Unlock()
	m.publishAll(s)
	return nil
}

func (m *Manager) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Saves counts successful writes to the store.
func (m *Manager) Saves() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// SaveIfDirty writes pending changes when auto-save is on. It reports
// whether anything was written.
func (m *Manager) SaveIfDirty(ctx context.Context) (bool, error) {
	return m.save(ctx, false)
}

// Save writes the current settings unconditionally.
func (m *Manager) Save(ctx context.Context) error {
	_, err := m.save(ctx, true)
	return err
}

func (m *Manager) save(ctx context.Context, force bool) (bool, error) {
	const op = "config.Save"
	if err := m.lock(ctx, op); err != nil {
		return false, err
	}
	defer m.unlock()

	m.mu.RLock()
	s, dirty := m.cur.Clone(), m.dirty
	m.mu.RUnlock()
	if !force && (!dirty || !s.System.AutoSave) {
		return false, nil
	}
	if err := m.store.Save(s); err != nil {
		return false, errcode.Wrap(errcode.Error, op, err)
	}
	m.mu.Lock()
	m.dirty = false
	m.saves++
	m.mu.Unlock()
	m.log.Info("settings saved")
	return true, nil
}

func (m *Manager) publishAll(s types.Settings) {
	for _, sec := range Sections {
		m.publish(sec, s)
	}
}

func (m *Manager) publish(sec string, s types.Settings) {
	if m.conn == nil {
		return
	}
	var payload any
	switch sec {
	case "keypad":
		payload = s.Clone().Keypad
	case "led":
		payload = s.LED
	case "buzzer":
		payload = s.Buzzer
	case "backlight":
		payload = s.Backlight
	case "sleep":
		payload = s.Sleep
	case "system":
		payload = s.System
	default:
		return
	}
	m.conn.Publish(m.conn.NewMessage(bus.T("config", sec), payload, true))
}
