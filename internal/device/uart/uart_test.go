package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/types"
)

func newTestPort(t *testing.T) (*Port, *devsim.SerialDevice) {
	t.Helper()

	dev := devsim.NewSerialDevice()
	bus := devsim.NewBus()
	require.NoError(t, bus.Register(dev))

	port, err := New(bus)
	require.NoError(t, err)
	return port, dev
}

func TestNewProgramsLine(t *testing.T) {
	_, dev := newTestPort(t)

	assert.Equal(t, uint16(types.UartDivisor115200), dev.Divisor())
	assert.Equal(t, uint8(types.UartLcr8N1), dev.LineControl(), "DLAB must be cleared after the divisor")
	assert.Equal(t, uint8(types.UartFifoEnableClear), dev.FifoControl())
	assert.Equal(t, uint8(types.UartMcrReady), dev.ModemControl())
	assert.Empty(t, dev.Output(), "init must not leak bytes into the data stream")
}

func TestNewRequiresBus(t *testing.T) {
	port, err := New(nil)
	assert.Nil(t, port)
	assert.Error(t, err)
}

func TestWriteByte(t *testing.T) {
	port, dev := newTestPort(t)

	port.WriteByte('O')
	port.WriteByte('K')
	assert.Equal(t, "OK", dev.Output())
}

func TestWriteStringExpandsNewlines(t *testing.T) {
	port, dev := newTestPort(t)

	port.WriteString("boot\nok\n")
	assert.Equal(t, "boot\r\nok\r\n", dev.Output())
	assert.Equal(t, []string{"boot", "ok"}, dev.Lines())
}

// The divisor latch shares ports with data; a write while DLAB is set must
// not be captured as console output.
func TestDivisorLatchDoesNotCapture(t *testing.T) {
	dev := devsim.NewSerialDevice()
	bus := devsim.NewBus()
	require.NoError(t, bus.Register(dev))

	bus.Outb(types.UartCom1Base+types.UartRegLineCtrl, types.UartLcrDLAB)
	bus.Outb(types.UartCom1Base+types.UartRegData, 0x42)
	bus.Outb(types.UartCom1Base+types.UartRegLineCtrl, types.UartLcr8N1)
	bus.Outb(types.UartCom1Base+types.UartRegData, 0x42)

	assert.Equal(t, uint16(0x42), dev.Divisor())
	assert.Equal(t, "\x42", dev.Output())
}
