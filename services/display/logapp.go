package display

import (
	"sync"
	"time"

	"calcpad-go/types"
	"calcpad-go/x/logx"
)

// LogApp stands in for the calculator UI: it logs what it is given and
// remembers the last text shown.
type LogApp struct {
	log logx.Logger

	mu        sync.Mutex
	text      string
	state     types.SystemState
	last      types.KeyEvent
	keys      uint32
	refreshes uint32
}

func NewLogApp(log logx.Logger) *LogApp {
	if log == nil {
		log = logx.Nop()
	}
	return &LogApp{log: log}
}

func (a *LogApp) HandleKeyEvent(ev types.KeyEvent) {
	a.mu.Lock()
	a.last = ev
	a.keys++
	a.mu.Unlock()
	if ev.Type == types.KeyCombo {
		a.log.Debug("key", "type", ev.Type.String(), "key", uint8(ev.Key), "count", ev.ComboCount)
		return
	}
	a.log.Debug("key", "type", ev.Type.String(), "key", uint8(ev.Key))
}

func (a *LogApp) HandleDisplayUpdate(u types.DisplayUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch u.Kind {
	case types.DisplayText:
		a.text = u.String()
		a.log.Info("display", "text", a.text)
	case types.DisplayClear:
		a.text = ""
	case types.DisplayState:
		a.state = types.SystemState(u.Value)
		a.log.Debug("display", "state", a.state.String())
	case types.DisplayBrightness:
		a.log.Debug("display", "brightness", u.Value)
	}
}

func (a *LogApp) Refresh(time.Time) {
	a.mu.Lock()
	a.refreshes++
	a.mu.Unlock()
}

func (a *LogApp) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

func (a *LogApp) State() types.SystemState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastKey returns the most recent key event and how many were seen.
func (a *LogApp) LastKey() (types.KeyEvent, uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.keys
}

func (a *LogApp) Refreshes() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshes
}
