package system

import "runtime"

// ResourceProbe reports memory figures for health checks.
type ResourceProbe interface {
	FreeHeap() uint32
	// StackFree returns a task's minimum free stack in words, when the
	// runtime can measure it.
	StackFree(task string) (uint32, bool)
}

// RuntimeProbe reads the Go runtime's memory statistics. Goroutine stacks
// grow on demand, so stack depth is not measurable and StackFree reports
// unavailable.
type RuntimeProbe struct{}

func (RuntimeProbe) FreeHeap() uint32 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return freeOf(&ms)
}

func (RuntimeProbe) StackFree(string) (uint32, bool) { return 0, false }

// MemStats returns the raw runtime figures used by the console.
func (RuntimeProbe) MemStats() (free, sys, inuse uint64, numGC uint32) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return uint64(freeOf(&ms)), ms.HeapSys, ms.HeapInuse, ms.NumGC
}

func freeOf(ms *runtime.MemStats) uint32 {
	if ms.HeapInuse >= ms.HeapSys {
		return 0
	}
	free := ms.HeapSys - ms.HeapInuse
	if free > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(free)
}
