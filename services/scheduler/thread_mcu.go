//go:build rp2040 || rp2350

package scheduler

// TinyGo schedules goroutines cooperatively; there is no thread to pin.
func lockThread() func() { return func() {} }
