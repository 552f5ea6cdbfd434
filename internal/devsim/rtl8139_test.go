package devsim

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/othello-os/go-othello/internal/types"
)

var nicTestMAC = [6]byte{0x52, 0x54, 0x00, 0xAB, 0xCD, 0xEF}

// createTestNic returns an RX/TX-enabled NIC model with a ring buffer
// already programmed, plus the ring's physical base.
func createTestNic(t *testing.T) (*Rtl8139Device, *Memory, uint64) {
	t.Helper()

	mem, err := NewMemory(4 << 20)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	ring, err := mem.AllocPages(3)
	if err != nil {
		t.Fatalf("AllocPages failed: %v", err)
	}

	nic := NewRtl8139Device(0xC000, nicTestMAC, mem)
	nic.PortOut(0xC000+types.NicRegRBSTART, 4, uint32(ring))
	nic.PortOut(0xC000+types.NicRegCR, 1, types.NicCrRxEnable|types.NicCrTxEnable)
	return nic, mem, ring
}

func TestRtl8139ResetDefaults(t *testing.T) {
	nic, _, _ := createTestNic(t)

	nic.PortOut(0xC000+types.NicRegIMR, 2, types.NicIsrUnmask)
	nic.PortOut(0xC000+types.NicRegCR, 1, types.NicCrReset)

	if got := nic.PortIn(0xC000+types.NicRegCR, 1); got&types.NicCrReset != 0 {
		t.Errorf("CR.RESET did not self-clear: 0x%02X", got)
	}
	if got := nic.PortIn(0xC000+types.NicRegRBSTART, 4); got != 0 {
		t.Errorf("RBSTART survived reset: 0x%08X", got)
	}
	if got := nic.PortIn(0xC000+types.NicRegIMR, 2); got != 0 {
		t.Errorf("IMR survived reset: 0x%04X", got)
	}
	if got := nic.PortIn(0xC000+types.NicRegCAPR, 2); got != nicCaprDefault {
		t.Errorf("CAPR = 0x%04X after reset, want 0x%04X", got, nicCaprDefault)
	}

	// The station address is wired to the EEPROM, not to reset.
	for i, want := range nicTestMAC {
		if got := nic.PortIn(0xC000+types.NicRegIDR0+uint16(i), 1); uint8(got) != want {
			t.Errorf("IDR%d = 0x%02X, want 0x%02X", i, got, want)
		}
	}
}

func TestRtl8139InjectDMA(t *testing.T) {
	nic, mem, ring := createTestNic(t)

	frame := make([]byte, 22)
	for i := range frame {
		frame[i] = byte(i + 1)
	}
	if !nic.InjectFrame(frame) {
		t.Fatal("InjectFrame refused a frame on an empty ring")
	}

	var written [4 + 22]byte
	if err := mem.ReadPhys(ring, written[:]); err != nil {
		t.Fatalf("ReadPhys failed: %v", err)
	}
	if status := binary.LittleEndian.Uint16(written[0:2]); status != types.NicRxStatusOK {
		t.Errorf("ring header status = 0x%04X, want OK", status)
	}
	if length := binary.LittleEndian.Uint16(written[2:4]); length != 22 {
		t.Errorf("ring header length = %d, want 22", length)
	}
	if !bytes.Equal(written[4:], frame) {
		t.Error("ring payload does not match the injected frame")
	}

	if got := nic.PortIn(0xC000+types.NicRegCBR, 2); got != 28 {
		t.Errorf("CBR = %d after one 22-byte frame, want dword-aligned 28", got)
	}
	if isr := nic.PortIn(0xC000+types.NicRegISR, 2); isr&types.NicIsrRxOK == 0 {
		t.Errorf("ISR = 0x%04X, RX_OK not raised", isr)
	}
}

func TestRtl8139InjectNeedsRxEnable(t *testing.T) {
	mem, err := NewMemory(1 << 20)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	nic := NewRtl8139Device(0xC000, nicTestMAC, mem)

	if nic.InjectFrame(make([]byte, 60)) {
		t.Error("InjectFrame succeeded with the receiver disabled")
	}
	if isr := nic.PortIn(0xC000+types.NicRegISR, 2); isr != 0 {
		t.Errorf("ISR = 0x%04X on a disabled receiver, want 0", isr)
	}
}

func TestRtl8139RingOverflow(t *testing.T) {
	nic, _, _ := createTestNic(t)

	// 1500-byte frames consume 1504 ring bytes each. With CAPR never
	// advanced the sixth injection would need 9024 of 8192 bytes.
	frame := make([]byte, 1500)
	for i := 0; i < 5; i++ {
		if !nic.InjectFrame(frame) {
			t.Fatalf("injection %d refused before the ring filled", i)
		}
	}
	if nic.InjectFrame(frame) {
		t.Fatal("injection into a full ring succeeded")
	}
	if isr := nic.PortIn(0xC000+types.NicRegISR, 2); isr&types.NicIsrRxOverflow == 0 {
		t.Errorf("ISR = 0x%04X, RX_OVF not raised on overflow", isr)
	}
}

func TestRtl8139SlackSpill(t *testing.T) {
	nic, mem, ring := createTestNic(t)

	frame := make([]byte, 1500)
	for i := 0; i < 5; i++ {
		if !nic.InjectFrame(frame) {
			t.Fatalf("injection %d refused", i)
		}
	}
	// Pretend the driver consumed everything: park CAPR 16 bytes behind
	// the hardware cursor.
	nic.PortOut(0xC000+types.NicRegCAPR, 2, 7520-16)

	spill := make([]byte, 900)
	for i := range spill {
		spill[i] = byte(i * 7)
	}
	if !nic.InjectFrame(spill) {
		t.Fatal("injection refused with a drained ring")
	}

	// The frame begins at 7520 and runs past the 8192 wrap into slack.
	got := make([]byte, 900)
	if err := mem.ReadPhys(ring+7520+types.NicRxHeaderSize, got); err != nil {
		t.Fatalf("ReadPhys failed: %v", err)
	}
	if !bytes.Equal(got, spill) {
		t.Error("spilled frame bytes do not match")
	}
	if cbr := nic.PortIn(0xC000+types.NicRegCBR, 2); cbr != (7520+904)%types.NicRxRingLen {
		t.Errorf("CBR = %d, want wrapped %d", cbr, (7520+904)%types.NicRxRingLen)
	}
}

func TestRtl8139IsrWriteOneToClear(t *testing.T) {
	nic, _, _ := createTestNic(t)

	nic.RaiseISR(types.NicIsrRxOK | types.NicIsrTxOK)
	nic.PortOut(0xC000+types.NicRegISR, 2, types.NicIsrRxOK)

	if isr := nic.PortIn(0xC000+types.NicRegISR, 2); isr != types.NicIsrTxOK {
		t.Errorf("ISR = 0x%04X after clearing RX_OK, want TX_OK only", isr)
	}
}

func TestRtl8139Transmit(t *testing.T) {
	nic, mem, _ := createTestNic(t)

	staged, err := mem.AllocPages(1)
	if err != nil {
		t.Fatalf("AllocPages failed: %v", err)
	}
	frame := make([]byte, 64)
	for i := range frame {
		frame[i] = byte(0xA0 + i)
	}
	if err := mem.WritePhys(staged, frame); err != nil {
		t.Fatalf("WritePhys failed: %v", err)
	}

	nic.PortOut(0xC000+types.NicRegTSAD0, 4, uint32(staged))
	nic.PortOut(0xC000+types.NicRegTSD0, 4, 64)

	tsd := nic.PortIn(0xC000+types.NicRegTSD0, 4)
	if tsd&types.NicTsdTok == 0 || tsd&types.NicTsdSizeMask != 64 {
		t.Errorf("TSD0 = 0x%08X, want TOK with length 64", tsd)
	}
	if isr := nic.PortIn(0xC000+types.NicRegISR, 2); isr&types.NicIsrTxOK == 0 {
		t.Errorf("ISR = 0x%04X, TX_OK not raised", isr)
	}

	sent := nic.TxFrames()
	if len(sent) != 1 || !bytes.Equal(sent[0], frame) {
		t.Fatalf("outbox holds %d frames, want the staged frame back", len(sent))
	}

	// Writing zero releases the descriptor.
	nic.PortOut(0xC000+types.NicRegTSD0, 4, 0)
	if got := nic.PortIn(0xC000+types.NicRegTSD0, 4); got != 0 {
		t.Errorf("TSD0 = 0x%08X after release, want 0", got)
	}
}

func TestRtl8139HoldTx(t *testing.T) {
	nic, mem, _ := createTestNic(t)
	nic.HoldTx(true)

	staged, err := mem.AllocPages(1)
	if err != nil {
		t.Fatalf("AllocPages failed: %v", err)
	}
	nic.PortOut(0xC000+types.NicRegTSAD0, 4, uint32(staged))
	nic.PortOut(0xC000+types.NicRegTSD0, 4, 100)

	if tsd := nic.PortIn(0xC000+types.NicRegTSD0, 4); tsd&types.NicTsdTok != 0 {
		t.Errorf("TSD0 = 0x%08X, completion raised while held", tsd)
	}

	sink := make(chan []byte, 1)
	nic.SetTxSink(func(frame []byte) { sink <- frame })
	nic.HoldTx(false)
	nic.PortOut(0xC000+types.NicRegTSAD0+4, 4, uint32(staged))
	nic.PortOut(0xC000+types.NicRegTSD0+4, 4, 100)
	select {
	case frame := <-sink:
		if len(frame) != 100 {
			t.Errorf("sink frame length = %d, want 100", len(frame))
		}
	default:
		t.Error("tx sink never saw the frame")
	}
}

func TestRtl8139ForceCBR(t *testing.T) {
	nic, _, _ := createTestNic(t)

	nic.ForceCBR(5000)
	if got := nic.PortIn(0xC000+types.NicRegCBR, 2); got != 5000 {
		t.Errorf("CBR = %d after ForceCBR, want 5000", got)
	}
}
