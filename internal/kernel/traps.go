package kernel

import (
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
)

// TrapVectors is the size of the interrupt descriptor table.
const TrapVectors = 256

// TrapHandler services one vector.
type TrapHandler func(vector uint8)

// TrapTable routes the 256 interrupt vectors. Every slot starts on the
// catch-all handler, which reports the fault on the console once and then
// invokes the halt hook; without a populated table any fault would escalate
// to a triple-fault reset.
type TrapTable struct {
	console interfaces.SerialPort
	halt    func()
	slots   [TrapVectors]TrapHandler
	faults  uint64
}

// NewTrapTable installs the catch-all handler in all vectors. The halt hook
// may be nil.
func NewTrapTable(console interfaces.SerialPort, halt func()) (*TrapTable, error) {
	if console == nil {
		return nil, fmt.Errorf("console is required")
	}
	tt := &TrapTable{console: console, halt: halt}
	for v := range tt.slots {
		tt.slots[v] = tt.catchAll
	}
	return tt, nil
}

// SetHandler overrides one vector. A nil handler restores the catch-all.
func (tt *TrapTable) SetHandler(vector uint8, h TrapHandler) {
	if h == nil {
		h = tt.catchAll
	}
	tt.slots[vector] = h
}

// Dispatch delivers a vector to its handler.
func (tt *TrapTable) Dispatch(vector uint8) {
	tt.slots[vector](vector)
}

// Faults returns how many vectors reached the catch-all handler.
func (tt *TrapTable) Faults() uint64 {
	return tt.faults
}

func (tt *TrapTable) catchAll(vector uint8) {
	tt.faults++
	tt.console.WriteString(fmt.Sprintf("EXCEPTION vector=%d\n", vector))
	if tt.halt != nil {
		tt.halt()
	}
}
