//go:build property
// +build property

package pool

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPoolProperties checks the capacity and reset invariants against random
// acquire/release sequences.
func TestPoolProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: used count never exceeds capacity and matches live handles
	properties.Property("used count tracks live handles", prop.ForAll(
		func(capacity int, ops []bool) bool {
			p := New[int](capacity)
			var live []Handle
			for _, acquire := range ops {
				if acquire {
					h, ok := p.Acquire()
					if ok != (len(live) < capacity) {
						return false
					}
					if ok {
						live = append(live, h)
					}
				} else if len(live) > 0 {
					h := live[len(live)-1]
					live = live[:len(live)-1]
					if p.Release(h) != nil {
						return false
					}
				}
				if p.UsedCount() != len(live) || p.UsedCount() > p.Cap() {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.Bool()),
	))

	// Property: a reacquired slot always starts at the zero value
	properties.Property("released slots are reset", prop.ForAll(
		func(values []int) bool {
			p := New[int](1)
			for _, v := range values {
				h, ok := p.Acquire()
				if !ok || *p.Get(h) != 0 {
					return false
				}
				*p.Get(h) = v
				if p.Release(h) != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
