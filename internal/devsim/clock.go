package devsim

import "sync/atomic"

// Default increments chosen so spin loops observe forward progress without
// the counter racing past 32-bit wrap in short runs.
const (
	clockReadStep  = 7
	clockPauseStep = 64
)

// VirtualClock is a deterministic cycle counter. Every read advances the
// count by a fixed step so code timing off it behaves identically from run
// to run.
type VirtualClock struct {
	cycles atomic.Uint64
}

// NewVirtualClock creates a clock starting at the given cycle count.
func NewVirtualClock(start uint64) *VirtualClock {
	c := &VirtualClock{}
	c.cycles.Store(start)
	return c
}

// Cycles returns the current count and moves time forward a little.
func (c *VirtualClock) Cycles() uint64 {
	return c.cycles.Add(clockReadStep) - clockReadStep
}

// Pause models a spin-loop hint: time passes faster than on a plain read.
func (c *VirtualClock) Pause() {
	c.cycles.Add(clockPauseStep)
}

// Advance moves the clock forward by n cycles.
func (c *VirtualClock) Advance(n uint64) {
	c.cycles.Add(n)
}
