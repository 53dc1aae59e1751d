package forwarder

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/au915gw/gateway/internal/gwtypes"
)

const (
	defaultKeepaliveInterval = 10 * time.Second
	defaultStatInterval      = 30 * time.Second
	livenessWindowUs         = 30_000_000
	udpReadDeadline          = time.Second
	maxBatchSize             = 8
	maxDatagramBytes         = 2048
	firstItemWait            = 100 * time.Millisecond
)

// PacketConn is the narrow socket surface the engine needs; *net.UDPConn
// satisfies it. Tests substitute a fake in-process pair, grounded on the
// teacher's direct use of *net.UDPConn in NewUDPPacketForwarder but
// narrowed for test-doubling the way internal/radio narrows periph's
// richer SPI/GPIO interfaces.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Clock is the monotonic microsecond time source shared with the radio
// driver and channel manager (spec.md §6).
type Clock interface {
	NowUs() uint32
}

// Scheduler is the channel manager's downlink-acceptance surface. Using an
// interface here (rather than importing *channel.Manager's concrete type
// list of methods beyond ScheduleTx) keeps this package's dependency on
// channel to the one operation it actually drives.
type Scheduler interface {
	ScheduleTx(req gwtypes.TxRequest, done func(ok bool, errCode string)) error
}

// StatsSource is read by the stats tick to populate the PUSH_DATA "stat"
// object. Implemented by internal/gwcore's stats aggregator.
type StatsSource interface {
	Snapshot() gwtypes.GatewayStats
}

// UplinkAccountant receives the engine's own bookkeeping events so the
// gateway core's counters stay authoritative without this package
// importing gwcore. OnTxDropped covers the downlink side: a PULL_RESP the
// channel manager rejected before it ever reached a radio queue.
type UplinkAccountant interface {
	OnUplinkForwarded(n int)
	OnUplinkDropped(n int)
	OnTxDropped()
}

// Link gates outbound sends on external connectivity (spec.md §6): the
// engine keeps receiving even when the link is down, it just stops
// sending.
type Link interface {
	IsConnected() bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithKeepaliveInterval(d time.Duration) Option {
	return func(e *Engine) { e.keepaliveInterval = d }
}

func WithStatInterval(d time.Duration) Option {
	return func(e *Engine) { e.statInterval = d }
}

// Engine drives one UDP socket implementing the Semtech packet-forwarder
// protocol, gateway side. It owns token counters, liveness tracking, and
// the uplink-batching/downlink-dispatch workers.
type Engine struct {
	log zerolog.Logger

	conn       PacketConn
	serverAddr net.Addr
	eui        [8]byte

	clock      Clock
	scheduler  Scheduler
	stats      StatsSource
	accountant UplinkAccountant
	link       Link

	keepaliveInterval time.Duration
	statInterval      time.Duration

	pushToken atomic.Uint32 // low 16 bits used
	pullToken atomic.Uint32

	pushSent atomic.Uint64
	pushAcks atomic.Uint64

	live liveness

	chanIdx atomic.Uint32 // current RX channel index, for rxpk.chan

	pendingMu sync.Mutex
	pending   []*gwtypes.RxDescriptor
	wake      chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine. SubmitUplink is the gateway core's entry point
// for accepted RxDescriptors (CRC-good ones, plus CRC-bad ones when the RX
// worker is set to forward them), which this engine buffers and batches
// into PUSH_DATA datagrams. scheduler is typically a
// *channel.Manager adapter.
func New(conn PacketConn, serverAddr net.Addr, eui [8]byte, clock Clock, scheduler Scheduler, stats StatsSource, accountant UplinkAccountant, link Link, opts ...Option) *Engine {
	e := &Engine{
		conn:              conn,
		serverAddr:        serverAddr,
		eui:               eui,
		clock:             clock,
		scheduler:         scheduler,
		stats:             stats,
		accountant:        accountant,
		link:              link,
		keepaliveInterval: defaultKeepaliveInterval,
		statInterval:      defaultStatInterval,
		wake:              make(chan struct{}, 1),
		log:               zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SubmitUplink hands one accepted RxDescriptor to the uplink batcher. Safe
// to call from the gateway core's RX processing worker; never blocks.
func (e *Engine) SubmitUplink(d *gwtypes.RxDescriptor) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, d)
	e.pendingMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) pendingLen() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

// drainPending removes and returns up to max queued descriptors in arrival
// order.
func (e *Engine) drainPending(max int) []*gwtypes.RxDescriptor {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	n := len(e.pending)
	if n > max {
		n = max
	}
	batch := e.pending[:n]
	rest := make([]*gwtypes.RxDescriptor, len(e.pending)-n)
	copy(rest, e.pending[n:])
	e.pending = rest
	return batch
}

// requeueFront puts descriptors back at the head of the pending buffer,
// used when a batch had to be shrunk to fit the outbound datagram cap
// (spec.md §4.3: "emit what fits and defer the rest").
func (e *Engine) requeueFront(descs []*gwtypes.RxDescriptor) {
	if len(descs) == 0 {
		return
	}
	e.pendingMu.Lock()
	e.pending = append(append([]*gwtypes.RxDescriptor{}, descs...), e.pending...)
	e.pendingMu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SetChannel updates the uplink channel index reported in rxpk.chan. No
// code in this module calls it, and hopping retunes do not update it, so
// rxpk.chan stays 0 unless a caller sets it.
func (e *Engine) SetChannel(idx uint8) { e.chanIdx.Store(uint32(idx)) }

// Status reports the current liveness view, spec.md §3 ForwarderStatus.
func (e *Engine) Status() gwtypes.ForwarderStatus {
	return gwtypes.ForwarderStatus{
		Connected:     e.live.isConnected(),
		PushAckCount:  e.pushAcks.Load(),
		PullAckCount:  e.live.pullAcks(),
		LastPullAckAt: e.live.lastPullAck(),
	}
}

// Start launches the engine's four worker loops and returns immediately.
func (e *Engine) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	loops := []func(context.Context){
		e.udpRxLoop,
		e.uplinkBatchLoop,
		e.keepaliveLoop,
		e.statsLoop,
	}
	for _, fn := range loops {
		e.wg.Add(1)
		go func(f func(context.Context)) {
			defer e.wg.Done()
			f(workerCtx)
		}(fn)
	}
}

// Stop cancels all worker loops, closes the socket, and waits for them to
// exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	_ = e.conn.Close()
	e.wg.Wait()
}

func (e *Engine) nextPushToken() uint16 {
	return uint16(e.pushToken.Add(1))
}

func (e *Engine) nextPullToken() uint16 {
	return uint16(e.pullToken.Add(1))
}

// udpRxLoop receives datagrams with a 1s socket timeout so it can observe
// shutdown (spec.md §5), and dispatches by packet type. It keeps running
// even when the link is down — only sends are gated.
func (e *Engine) udpRxLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = e.conn.SetReadDeadline(time.Now().Add(udpReadDeadline))
		n, _, err := e.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // timeout or transient read error; loop observes ctx on next pass
		}
		e.handleDatagram(buf[:n])
	}
}

func (e *Engine) handleDatagram(data []byte) {
	h, err := decodeHeader(data)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropped malformed datagram")
		return
	}
	switch h.typ {
	case typePushAck:
		e.pushAcks.Add(1)
	case typePullAck:
		e.live.onPullAck(e.clock.NowUs())
	case typePullResp:
		e.handlePullResp(h.token, data[4:])
	default:
		e.log.Debug().Uint8("type", h.typ).Msg("ignored datagram type")
	}
}

func (e *Engine) handlePullResp(token uint16, body []byte) {
	req, err := decodePullResp(body)
	if err != nil {
		code := ErrCodeTxFailed
		if de, ok := err.(*DecodeError); ok {
			code = de.Code
		}
		e.log.Warn().Err(err).Str("code", code).Msg("pull_resp decode failed")
		e.send(encodeTxAck(e.eui, token, code))
		return
	}

	err = e.scheduler.ScheduleTx(req, func(ok bool, errCode string) {
		e.send(encodeTxAck(e.eui, token, errCode))
		_ = ok
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("channel manager rejected scheduled tx")
		e.accountant.OnTxDropped()
		e.send(encodeTxAck(e.eui, token, ErrCodeTxFailed))
	}
}

// send attempts to write buf to the network server and reports whether it
// actually left the socket. It is a no-op returning false when the link is
// down (spec.md §6): callers use the result to decide uplink accounting,
// not just logging.
func (e *Engine) send(buf []byte) (bool, error) {
	if !e.link.IsConnected() {
		return false, nil
	}
	if _, err := e.conn.WriteTo(buf, e.serverAddr); err != nil {
		e.log.Warn().Err(err).Msg("udp send failed")
		return false, err
	}
	return true, nil
}

// uplinkBatchLoop drains the pending buffer into PUSH_DATA datagrams: up
// to 8 descriptors per batch, a 100ms timed wait after the first item
// arrives, non-blocking thereafter, capped at 2048 encoded bytes
// (spec.md §4.3). The buffer is fed by SubmitUplink, called from the
// gateway core's RX processing worker — not directly from the radio ISR,
// so this is a plain mutex-guarded slice rather than a second bounded
// SPSC queue; spec.md §4.4 names exactly two of those (RX and TX).
func (e *Engine) uplinkBatchLoop(ctx context.Context) {
	for {
		select {
		case <-e.wake:
		case <-ctx.Done():
			return
		}

		timer := time.NewTimer(firstItemWait)
	waitMore:
		for e.pendingLen() < maxBatchSize {
			select {
			case <-timer.C:
				break waitMore
			case <-e.wake:
				if e.pendingLen() >= maxBatchSize {
					break waitMore
				}
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
		timer.Stop()

		if batch := e.drainPending(maxBatchSize); len(batch) > 0 {
			e.sendUplinkBatch(batch)
		}
		if e.pendingLen() > 0 {
			select {
			case e.wake <- struct{}{}:
			default:
			}
		}
	}
}

func (e *Engine) sendUplinkBatch(batch []*gwtypes.RxDescriptor) {
	chanIdx := uint8(e.chanIdx.Load())
	for len(batch) > 0 {
		token := e.nextPushToken()
		buf, err := encodeUplink(e.eui, token, batch, chanIdx)
		if err != nil {
			e.log.Warn().Err(err).Msg("uplink encode failed")
			e.accountant.OnUplinkDropped(len(batch))
			return
		}
		if len(buf) <= maxDatagramBytes || len(batch) == 1 {
			e.pushSent.Add(1)
			if ok, _ := e.send(buf); ok {
				e.accountant.OnUplinkForwarded(len(batch))
			} else {
				e.accountant.OnUplinkDropped(len(batch))
			}
			return
		}
		// Shrink the batch one descriptor at a time until it fits the
		// outbound cap, deferring each removed descriptor back to the head
		// of the pending buffer (spec.md §4.3: "emit what fits and defer the
		// rest").
		fit := len(batch) - 1
		deferred := batch[fit:]
		batch = batch[:fit]
		e.requeueFront(deferred)
	}
}

// keepaliveLoop sends PULL_DATA at keepaliveInterval and runs the liveness
// watchdog on the same tick (spec.md §4.3, §8 property 7).
func (e *Engine) keepaliveLoop(ctx context.Context) {
	e.send(encodePullData(e.eui, e.nextPullToken()))

	ticker := time.NewTicker(e.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.live.checkStale(e.clock.NowUs(), livenessWindowUs)
			e.send(encodePullData(e.eui, e.nextPullToken()))
		case <-ctx.Done():
			return
		}
	}
}

// statsLoop emits a stat-only PUSH_DATA every statInterval.
func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.statInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snapshot := e.stats.Snapshot()
			ackr := gwtypes.AckRatio(e.pushAcks.Load(), e.pushSent.Load())
			buf, err := encodeStat(e.eui, e.nextPushToken(), snapshot, ackr, time.Now())
			if err != nil {
				e.log.Warn().Err(err).Msg("stat encode failed")
				continue
			}
			e.pushSent.Add(1)
			e.send(buf)
		case <-ctx.Done():
			return
		}
	}
}
