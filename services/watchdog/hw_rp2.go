//go:build rp2040 || rp2350

package watchdog

import (
	"machine"
	"time"
)

// maxTimeout is the longest period the RP2 watchdog counter can hold.
const maxTimeout = 8388 * time.Millisecond

type machineWatchdog struct{}

// Machine returns the on-chip watchdog.
func Machine() Hardware { return machineWatchdog{} }

func (machineWatchdog) Configure(timeout time.Duration) error {
	return machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: uint32(timeout.Milliseconds())})
}

func (machineWatchdog) Start() error { return machine.Watchdog.Start() }
func (machineWatchdog) Update()      { machine.Watchdog.Update() }

func (machineWatchdog) MaxTimeout() time.Duration { return maxTimeout }
