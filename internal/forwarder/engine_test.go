package forwarder

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/au915gw/gateway/internal/gwtypes"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "udp" }
func (fakeAddr) String() string  { return "fake-server:1700" }

// fakeConn is an in-process stand-in for *net.UDPConn: datagrams "from the
// server" are pushed onto toEngine, datagrams the engine sends are
// recorded in sent.
type fakeConn struct {
	toEngine chan []byte

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{toEngine: make(chan []byte, 8)}
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case data, ok := <-c.toEngine:
		if !ok {
			return 0, nil, net.ErrClosed
		}
		return copy(p, data), fakeAddr{}, nil
	case <-time.After(20 * time.Millisecond):
		return 0, nil, &net.OpError{Op: "read", Err: errTimeout{}}
	}
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "i/o timeout" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte{}, p...))
	return len(p), nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) sentDatagrams() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.sent...)
}

type fakeScheduler struct {
	lastReq gwtypes.TxRequest
	result  bool
	errCode string
}

func (f *fakeScheduler) ScheduleTx(req gwtypes.TxRequest, done func(ok bool, errCode string)) error {
	f.lastReq = req
	done(f.result, f.errCode)
	return nil
}

// rejectingScheduler simulates a full TX queue: ScheduleTx always fails
// before invoking done, the way channel.ErrQueueFull does.
type rejectingScheduler struct{}

func (rejectingScheduler) ScheduleTx(req gwtypes.TxRequest, done func(ok bool, errCode string)) error {
	return errQueueFullStub
}

type errQueueFullStubType struct{}

func (errQueueFullStubType) Error() string { return "tx queue full" }

var errQueueFullStub = errQueueFullStubType{}

type fakeStatsSource struct{}

func (fakeStatsSource) Snapshot() gwtypes.GatewayStats { return gwtypes.GatewayStats{} }

type fakeAccountant struct {
	mu                          sync.Mutex
	forwarded, dropped, txDrops int
}

func (f *fakeAccountant) OnUplinkForwarded(n int) { f.mu.Lock(); f.forwarded += n; f.mu.Unlock() }
func (f *fakeAccountant) OnUplinkDropped(n int)   { f.mu.Lock(); f.dropped += n; f.mu.Unlock() }
func (f *fakeAccountant) OnTxDropped()            { f.mu.Lock(); f.txDrops++; f.mu.Unlock() }

func (f *fakeAccountant) counts() (forwarded, dropped, txDrops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forwarded, f.dropped, f.txDrops
}

type alwaysUpClock struct{}

func (alwaysUpClock) NowUs() uint32 { return 1_000_000 }

type alwaysConnectedLink struct{}

func (alwaysConnectedLink) IsConnected() bool { return true }

// neverConnectedLink simulates a gateway with no backhaul: the engine must
// keep receiving but every send is a no-op.
type neverConnectedLink struct{}

func (neverConnectedLink) IsConnected() bool { return false }

// failingConn is a fakeConn whose WriteTo always errors, for exercising the
// send-failure accounting path independent of link state.
type failingConn struct {
	*fakeConn
}

func (c *failingConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	return 0, &net.OpError{Op: "write", Err: errTimeout{}}
}

// pullRespDatagram builds a server-originated PULL_RESP frame: header plus
// bare JSON, no EUI (spec.md §4.3).
func pullRespDatagram(token uint16, body []byte) []byte {
	buf := make([]byte, 4+len(body))
	encodeHeader(buf[:4], token, typePullResp)
	copy(buf[4:], body)
	return buf
}

func newTestEngine(conn *fakeConn, sched *fakeScheduler) *Engine {
	return New(conn, fakeAddr{}, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, alwaysUpClock{}, sched, fakeStatsSource{}, &fakeAccountant{}, alwaysConnectedLink{},
		WithKeepaliveInterval(time.Hour), WithStatInterval(time.Hour))
}

// TestDownlinkScenario exercises spec.md §8.8.a end to end: PULL_RESP in,
// TX_ACK with no error out.
func TestDownlinkScenario(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: true}
	e := newTestEngine(conn, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	body := []byte(`{"txpk":{"imme":true,"freq":923.3,"powe":14,"datr":"SF12BW500","codr":"4/5","ipol":true,"size":11,"data":"SGVsbG8gV29ybGQ="}}`)
	conn.toEngine <- pullRespDatagram(42, body)

	require.Eventually(t, func() bool {
		for _, d := range conn.sentDatagrams() {
			h, err := decodeHeader(d)
			if err == nil && h.typ == typeTxAck && h.token == 42 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.EqualValues(t, 923300000, sched.lastReq.Mod.FrequencyHz)
}

func TestDownlinkRejectionEmitsErrorCode(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: false, errCode: ErrCodeTooLate}
	e := newTestEngine(conn, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	body := []byte(`{"txpk":{"imme":true,"freq":923.3,"powe":14,"datr":"SF12BW500","codr":"4/5","ipol":true,"size":2,"data":"AQI="}}`)
	conn.toEngine <- pullRespDatagram(7, body)

	require.Eventually(t, func() bool {
		for _, d := range conn.sentDatagrams() {
			if len(d) > 4 && d[3] == typeTxAck {
				var ack txAckJSON
				if err := jsonUnmarshalBody(d, &ack); err == nil && ack.TxpkAck.Error == ErrCodeTooLate {
					return true
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// TestUplinkBatching exercises the SubmitUplink-to-PUSH_DATA path.
func TestUplinkBatching(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: true}
	e := newTestEngine(conn, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	desc := &gwtypes.RxDescriptor{
		Payload:       []byte{1, 2, 3},
		Modulation:    gwtypes.Modulation{FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5},
		CRCOk:         true,
		HWTimestampUs: 42,
	}
	e.SubmitUplink(desc)

	require.Eventually(t, func() bool {
		for _, d := range conn.sentDatagrams() {
			h, err := decodeHeader(d)
			if err == nil && h.typ == typePushData {
				var parsed pushDataUplink
				if jsonUnmarshalBody(d, &parsed) == nil && len(parsed.Rxpk) == 1 {
					return parsed.Rxpk[0].Tmst == 42
				}
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// TestUplinkBatchFlushesAtCapWithoutWaiting exercises the maxBatchSize
// early-flush path: a full batch must not wait out firstItemWait.
func TestUplinkBatchFlushesAtCapWithoutWaiting(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: true}
	e := newTestEngine(conn, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	start := time.Now()
	for i := 0; i < maxBatchSize; i++ {
		e.SubmitUplink(&gwtypes.RxDescriptor{
			Payload:       []byte{byte(i)},
			Modulation:    gwtypes.Modulation{FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5},
			CRCOk:         true,
			HWTimestampUs: uint32(i),
		})
	}

	require.Eventually(t, func() bool {
		for _, d := range conn.sentDatagrams() {
			h, err := decodeHeader(d)
			if err != nil || h.typ != typePushData {
				continue
			}
			var parsed pushDataUplink
			if jsonUnmarshalBody(d, &parsed) == nil && len(parsed.Rxpk) == maxBatchSize {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	require.Less(t, time.Since(start), firstItemWait, "a full batch should flush before the 100ms ceiling")
}

// TestUplinkBatchSplitsOversizedDatagram exercises the maxDatagramBytes
// shrink-and-requeue path: enough descriptors to exceed the 2048-byte cap
// must be split across more than one PUSH_DATA datagram, with every
// descriptor eventually accounted for and no datagram over the cap.
func TestUplinkBatchSplitsOversizedDatagram(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: true}
	e := newTestEngine(conn, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	// Each rxpk's "data" field is a base64 payload; a 200-byte payload
	// comfortably forces the batch over maxDatagramBytes well before
	// maxBatchSize is reached.
	const n = 6
	big := make([]byte, 200)
	for i := range big {
		big[i] = byte(i)
	}
	for i := 0; i < n; i++ {
		e.SubmitUplink(&gwtypes.RxDescriptor{
			Payload:       append([]byte{}, big...),
			Modulation:    gwtypes.Modulation{FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5},
			CRCOk:         true,
			HWTimestampUs: uint32(i),
		})
	}

	require.Eventually(t, func() bool {
		total := 0
		datagramCount := 0
		for _, d := range conn.sentDatagrams() {
			h, err := decodeHeader(d)
			if err != nil || h.typ != typePushData {
				continue
			}
			require.LessOrEqual(t, len(d), maxDatagramBytes, "no PUSH_DATA datagram may exceed the cap")
			var parsed pushDataUplink
			if jsonUnmarshalBody(d, &parsed) == nil {
				total += len(parsed.Rxpk)
				datagramCount++
			}
		}
		return total == n && datagramCount > 1
	}, 2*time.Second, 5*time.Millisecond)
}

// TestUplinkNotCountedForwardedWhenLinkDown exercises the send-failure path
// send's bool result gates on: a PUSH_DATA built while the link is down
// must never reach OnUplinkForwarded, and must land in OnUplinkDropped
// instead (spec.md §7 rx_forwarded semantics).
func TestUplinkNotCountedForwardedWhenLinkDown(t *testing.T) {
	conn := newFakeConn()
	sched := &fakeScheduler{result: true}
	acct := &fakeAccountant{}
	e := New(conn, fakeAddr{}, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, alwaysUpClock{}, sched, fakeStatsSource{}, acct, neverConnectedLink{},
		WithKeepaliveInterval(time.Hour), WithStatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	e.SubmitUplink(&gwtypes.RxDescriptor{
		Payload:       []byte{1, 2, 3},
		Modulation:    gwtypes.Modulation{FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5},
		CRCOk:         true,
		HWTimestampUs: 42,
	})

	require.Eventually(t, func() bool {
		_, dropped, _ := acct.counts()
		return dropped == 1
	}, time.Second, 5*time.Millisecond)

	forwarded, _, _ := acct.counts()
	require.Zero(t, forwarded, "a datagram that never left the socket must not count as forwarded")
	require.Empty(t, conn.sentDatagrams())
}

// TestUplinkNotCountedForwardedOnWriteError covers the other half of the
// same path: the link reports connected but the socket write itself fails.
func TestUplinkNotCountedForwardedOnWriteError(t *testing.T) {
	conn := &failingConn{fakeConn: newFakeConn()}
	sched := &fakeScheduler{result: true}
	acct := &fakeAccountant{}
	e := New(conn, fakeAddr{}, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, alwaysUpClock{}, sched, fakeStatsSource{}, acct, alwaysConnectedLink{},
		WithKeepaliveInterval(time.Hour), WithStatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	e.SubmitUplink(&gwtypes.RxDescriptor{
		Payload:       []byte{1, 2, 3},
		Modulation:    gwtypes.Modulation{FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5},
		CRCOk:         true,
		HWTimestampUs: 42,
	})

	require.Eventually(t, func() bool {
		_, dropped, _ := acct.counts()
		return dropped == 1
	}, time.Second, 5*time.Millisecond)

	forwarded, _, _ := acct.counts()
	require.Zero(t, forwarded)
}

// TestDownlinkRejectionCountsTxDropped exercises stats.go:85's OnTxDropped
// wiring: a scheduler rejection (queue full) must increment it, not just
// log and TX_ACK.
func TestDownlinkRejectionCountsTxDropped(t *testing.T) {
	conn := newFakeConn()
	acct := &fakeAccountant{}
	e := New(conn, fakeAddr{}, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, alwaysUpClock{}, rejectingScheduler{}, fakeStatsSource{}, acct, alwaysConnectedLink{},
		WithKeepaliveInterval(time.Hour), WithStatInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	body := []byte(`{"txpk":{"imme":true,"freq":923.3,"powe":14,"datr":"SF12BW500","codr":"4/5","ipol":true,"size":2,"data":"AQI="}}`)
	conn.toEngine <- pullRespDatagram(9, body)

	require.Eventually(t, func() bool {
		_, _, txDrops := acct.counts()
		return txDrops == 1
	}, time.Second, 5*time.Millisecond)
}
