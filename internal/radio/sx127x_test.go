package radio

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/au915gw/gateway/internal/gwtypes"
)

// fakeConn is a software stand-in for the SX127x's SPI bus, modeled on the
// pack's stub-driver pattern (ystepanoff-nrfcomm/driver/stub): enough state
// to drive the register protocol without real hardware.
type fakeConn struct {
	mu     sync.Mutex
	regs   [256]byte
	fifo   []byte
	writes int
}

func (f *fakeConn) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(w) == 0 {
		return nil
	}
	addr := w[0]
	reg := addr & 0x7F
	if addr&0x80 != 0 {
		f.writes++
		if len(w) == 2 {
			f.regs[reg] = w[1]
		} else {
			f.fifo = append([]byte{}, w[1:]...)
		}
		return nil
	}
	if len(r) == 2 {
		r[1] = f.regs[reg]
		return nil
	}
	n := len(r) - 1
	if n > len(f.fifo) {
		n = len(f.fifo)
	}
	copy(r[1:], f.fifo[:n])
	return nil
}

func (f *fakeConn) setReg(addr, val byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = val
}

func newTestDevice(conn *fakeConn) *Device {
	return New("test", conn, nil, nil)
}

func TestInitChipAbsent(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, 0x00)
	d := newTestDevice(conn)

	err := d.Init(gwtypes.DefaultRadioConfig())
	require.ErrorIs(t, err, ErrChipAbsent)
	require.Equal(t, 0, conn.writes, "no register writes should occur after a version mismatch")
}

func TestInitSucceedsAndAppliesConfig(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)

	cfg := gwtypes.DefaultRadioConfig()
	cfg.FrequencyHz = 916800000
	require.NoError(t, d.Init(cfg))
	require.Equal(t, "standby", d.Mode())
}

// TestRxDescriptorIntegrity exercises spec.md §8 property 1 and the
// concrete scenario in §8.8.b: a 15-byte payload at tmst=123456 with RSSI
// reg 118 (-39dBm), SNR reg 40 (10dB), CRC OK.
func TestRxDescriptorIntegrity(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)

	cfg := gwtypes.DefaultRadioConfig()
	cfg.FrequencyHz = 916800000
	require.NoError(t, d.Init(cfg))

	// Arm receive first: entering RxContinuous clears the IRQ flags, so the
	// frame's registers are loaded afterwards, as the chip would on RxDone.
	var got *gwtypes.RxDescriptor
	require.NoError(t, d.StartReceiveContinuous(func(desc *gwtypes.RxDescriptor) { got = desc }))

	payload := []byte{0x40, 0x11, 0x22, 0x33, 0x44, 0x80, 0x01, 0x00, 0x01, 0xAB, 0xCD, 0xEF, 0x01, 0x02, 0x03}
	conn.mu.Lock()
	conn.fifo = payload
	conn.regs[regRxNbBytes] = byte(len(payload))
	conn.regs[regFifoRxCurrent] = 0
	conn.regs[regPktRssiValue] = 118
	conn.regs[regPktSnrValue] = 40
	conn.regs[regIrqFlags] = irqRxDone
	conn.mu.Unlock()

	d.HandleInterrupt(123456)

	require.NotNil(t, got)
	require.Equal(t, payload, got.Payload)
	require.EqualValues(t, -39, got.RSSIDBm)
	require.InDelta(t, 10.0, got.SNRDb(), 0.001)
	require.True(t, got.CRCOk)
	require.EqualValues(t, 123456, got.HWTimestampUs)
	require.EqualValues(t, 916800000, got.Modulation.FrequencyHz)
	require.Equal(t, gwtypes.BW125, got.Modulation.Bandwidth)
	require.EqualValues(t, 7, got.Modulation.SpreadingFactor)
	require.Equal(t, gwtypes.CR4_5, got.Modulation.CodingRate)
}

func TestRxDescriptorCrcError(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)
	require.NoError(t, d.Init(gwtypes.DefaultRadioConfig()))

	var got *gwtypes.RxDescriptor
	require.NoError(t, d.StartReceiveContinuous(func(desc *gwtypes.RxDescriptor) { got = desc }))

	conn.mu.Lock()
	conn.fifo = []byte{0x01, 0x02}
	conn.regs[regRxNbBytes] = 2
	conn.regs[regIrqFlags] = irqRxDone | irqPayloadCrcErr
	conn.mu.Unlock()

	d.HandleInterrupt(1)

	require.NotNil(t, got)
	require.False(t, got.CRCOk)
}

func TestTransmitRejectsOversizedPayload(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)
	require.NoError(t, d.Init(gwtypes.DefaultRadioConfig()))

	big := make([]byte, 256)
	err := d.Transmit(context.Background(), big, 0, nil)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindInvalidArgument, rerr.Kind)
}

func TestTransmitRequiresStandby(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)
	require.NoError(t, d.Init(gwtypes.DefaultRadioConfig()))
	require.NoError(t, d.StartReceiveContinuous(func(*gwtypes.RxDescriptor) {}))

	err := d.Transmit(context.Background(), []byte("hi"), 0, nil)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, KindBusy, rerr.Kind)
}

func TestTransmitDoneCallback(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)
	require.NoError(t, d.Init(gwtypes.DefaultRadioConfig()))

	done := make(chan bool, 1)
	require.NoError(t, d.Transmit(context.Background(), []byte("hello"), 0, func(ok bool) { done <- ok }))
	require.Equal(t, "tx", d.Mode())

	conn.setReg(regIrqFlags, irqTxDone)
	d.HandleInterrupt(0)

	select {
	case ok := <-done:
		require.True(t, ok)
	default:
		t.Fatal("tx callback was not invoked")
	}
	require.Equal(t, "standby", d.Mode())
}

func TestConsecutiveBusErrorsEscalation(t *testing.T) {
	conn := &fakeConn{}
	conn.setReg(regVersion, expectedVersion)
	d := newTestDevice(conn)
	require.NoError(t, d.Init(gwtypes.DefaultRadioConfig()))
	require.False(t, d.ShouldReset())

	// swap in a conn that always fails
	d.conn = failingConn{}
	for i := 0; i < 5; i++ {
		_, _ = d.readReg(regVersion)
	}
	require.True(t, d.ShouldReset())
}

type failingConn struct{}

var errBus = &Error{Op: "test", Kind: KindBusError}

func (failingConn) Tx(w, r []byte) error { return errBus }
