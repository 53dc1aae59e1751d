package gwcore

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/au915gw/gateway/internal/channel"
	"github.com/au915gw/gateway/internal/forwarder"
	"github.com/au915gw/gateway/internal/gwtypes"
)

type loopbackAddr struct{}

func (loopbackAddr) Network() string { return "udp" }
func (loopbackAddr) String() string  { return "ns:1700" }

// discardConn is a minimal forwarder.PacketConn that records sent
// datagrams and never delivers anything inbound; enough to exercise the
// uplink path end to end without a real socket.
type discardConn struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *discardConn) ReadFrom(p []byte) (int, net.Addr, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, nil, &net.OpError{Op: "read", Err: timeoutErr{}}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func (c *discardConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	c.sent = append(c.sent, append([]byte{}, p...))
	c.mu.Unlock()
	return len(p), nil
}

func (c *discardConn) SetReadDeadline(time.Time) error { return nil }
func (c *discardConn) Close() error                     { return nil }

func (c *discardConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type alwaysConnectedLink struct{}

func (alwaysConnectedLink) IsConnected() bool { return true }

// TestCoreDeliversCRCGoodFrameToUplink exercises the full
// radio-callback -> RxWorker -> forwarder.Engine.SubmitUplink path,
// verifying a CRC-good descriptor results in a PUSH_DATA send and a
// CRC-bad one does not.
func TestCoreDeliversCRCGoodFrameToUplink(t *testing.T) {
	stats := NewStats()
	conn := &discardConn{}
	eui := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	rxw := NewRxWorker(stats, zerolog.Nop())
	mgr := channel.New(&fakeRadio{}, &fakeRadio{}, &fakeClock{}, rxw, stats)
	engine := forwarder.New(conn, loopbackAddr{}, eui, &fakeClock{}, NewScheduler(mgr), stats, stats, alwaysConnectedLink{},
		forwarder.WithKeepaliveInterval(time.Hour), forwarder.WithStatInterval(time.Hour))
	rxw.SetSink(engine)

	core := New(Deps{EUI: eui, RxWorker: rxw, ChannelMgr: mgr, Engine: engine, Log: zerolog.Nop()}, stats)

	require.NoError(t, core.Start(context.Background()))
	defer core.Stop()

	core.rxw.HandleRx(&gwtypes.RxDescriptor{
		Payload: []byte{1, 2, 3},
		Modulation: gwtypes.Modulation{
			FrequencyHz: 915200000, Bandwidth: gwtypes.BW125, SpreadingFactor: 7, CodingRate: gwtypes.CR4_5,
		},
		CRCOk: true,
	})
	core.rxw.HandleRx(&gwtypes.RxDescriptor{Payload: []byte{9}, CRCOk: false})

	require.Eventually(t, func() bool {
		return stats.Snapshot().RxForwarded == 1
	}, time.Second, 5*time.Millisecond)

	snap := stats.Snapshot()
	require.EqualValues(t, 2, snap.RxTotal)
	require.EqualValues(t, 1, snap.RxOk)
	require.EqualValues(t, 1, snap.RxBad)
	require.EqualValues(t, 1, snap.RxForwarded)
	require.Greater(t, conn.sentCount(), 0)
}

func TestRunIDIsStableAcrossCalls(t *testing.T) {
	stats := NewStats()
	eui := [8]byte{}
	conn := &discardConn{}
	rxw := NewRxWorker(stats, zerolog.Nop())
	mgr := channel.New(&fakeRadio{}, &fakeRadio{}, &fakeClock{}, rxw, stats)
	engine := forwarder.New(conn, loopbackAddr{}, eui, &fakeClock{}, NewScheduler(mgr), stats, stats, alwaysConnectedLink{})
	rxw.SetSink(engine)
	core := New(Deps{EUI: eui, RxWorker: rxw, ChannelMgr: mgr, Engine: engine, Log: zerolog.Nop()}, stats)

	require.Equal(t, core.RunID(), core.RunID())
	require.NotEmpty(t, core.RunID())
}
