package timex

import "time"

// PeriodFromHz returns a nanosecond period for a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(1_000_000_000 / uint64(freqHz))
}

// Ms converts a millisecond setting to a Duration.
func Ms[T ~uint16 | ~uint32 | ~int](ms T) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Every reports whether a periodic action with the given divisor is due on
// cycle. Cycle 0 is always due.
func Every(cycle, divisor uint32) bool {
	return divisor != 0 && cycle%divisor == 0
}
