// File: internal/interfaces/clock.go
package interfaces

// Clock abstracts the CPU cycle counter used for port seeding, transaction
// ids and round-trip measurement
type Clock interface {
	// Cycles returns a monotonically increasing cycle count
	Cycles() uint64

	// Pause yields the CPU briefly inside a spin loop
	Pause()
}
