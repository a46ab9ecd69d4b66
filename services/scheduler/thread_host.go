//go:build !(rp2040 || rp2350)

package scheduler

import "runtime"

func lockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
