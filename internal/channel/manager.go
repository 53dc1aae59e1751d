// Package channel implements the channel manager: it owns the two radio
// handles with fixed roles (one pinned to continuous receive, one held in
// standby driving demand transmissions), serializes and time-schedules
// downlinks around the continuous receiver, and drives periodic RX channel
// hopping. Grounded on the teacher's worker-goroutine-plus-mutex pattern in
// internal/gateway/udp_packet_forwarder.go, generalized from a UDP send
// loop to a radio TX loop.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/au915gw/gateway/internal/gwtypes"
	"github.com/au915gw/gateway/internal/pipeline"
)

// RadioHandle is the narrow surface the channel manager needs from a radio
// driver. *radio.Device satisfies it; tests substitute a fake.
type RadioHandle interface {
	Retune(freqHz uint32) error
	ApplyModemParams(sf uint8, bw gwtypes.Bandwidth, cr gwtypes.CodingRate) error
	SetInvertIQ(rx, tx bool) error
	Transmit(ctx context.Context, payload []byte, preTxSpin time.Duration, cb func(ok bool)) error
	StartReceiveContinuous(cb func(*gwtypes.RxDescriptor)) error
	Mode() string
}

// Clock abstracts the monotonic microsecond time source shared with the
// radio driver and protocol engine (spec.md §6, "time source").
type Clock interface {
	NowUs() uint32
}

// RxSink receives frames off the RX radio. Modeled as the narrow
// trait/interface spec.md §9 calls for to break the cycle between the
// channel manager and the gateway core, rather than the reference's
// back-exported function pointer.
type RxSink interface {
	HandleRx(*gwtypes.RxDescriptor)
}

// TxOutcomeSink receives the channel manager's per-transmission accounting
// so GatewayStats can be updated without the channel package importing
// gwcore.
type TxOutcomeSink interface {
	OnTxOk()
	OnTxFail()
	OnTxCollision()
}

// TxResult is the disposition of a scheduled transmission, reported back
// to whoever called ScheduleTx so the protocol engine can emit the
// matching TX_ACK.
type TxResult uint8

const (
	TxResultOk TxResult = iota
	TxResultTooLate
	TxResultTooEarly
	TxResultFailed
)

func (r TxResult) String() string {
	switch r {
	case TxResultOk:
		return "ok"
	case TxResultTooLate:
		return "TOO_LATE"
	case TxResultTooEarly:
		return "TOO_EARLY"
	default:
		return "TX_FAILED"
	}
}

// Scheduling-window thresholds, spec.md §4.2 and §8 property 5.
const (
	maxEarlyUs      = 5_000_000
	maxLateUs       = -100_000
	txDoneTimeout   = 5 * time.Second
	queueCapacity   = 16
	hopTickMinDelay = time.Millisecond
)

type txJob struct {
	req  gwtypes.TxRequest
	done func(TxResult)
}

// Manager owns the RX and TX radio handles and the TX scheduling queue.
type Manager struct {
	log zerolog.Logger

	rx RadioHandle
	tx RadioHandle

	clock    Clock
	sink     RxSink
	outcomes TxOutcomeSink

	queue *pipeline.Queue[txJob]
	txMu  sync.Mutex

	hopPlan     []uint32
	hopIdx      int
	hopInterval time.Duration

	workerCtx context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger attaches a component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// New constructs a channel manager. rx and tx are the fixed-role handles;
// sink receives RxDescriptors off the RX radio; outcomes receives
// per-transmission stats.
func New(rx, tx RadioHandle, clock Clock, sink RxSink, outcomes TxOutcomeSink, opts ...Option) *Manager {
	m := &Manager{
		rx:       rx,
		tx:       tx,
		clock:    clock,
		sink:     sink,
		outcomes: outcomes,
		queue:    pipeline.NewQueue[txJob](queueCapacity),
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start places the RX radio into continuous receive and launches the TX
// worker. The TX radio is assumed already in Standby from its own Init.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.rx.StartReceiveContinuous(func(desc *gwtypes.RxDescriptor) {
		m.sink.HandleRx(desc)
	}); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	m.workerCtx = workerCtx
	m.cancel = cancel
	m.wg.Add(1)
	go m.txWorkerLoop(workerCtx)
	return nil
}

// Stop cancels the TX worker and any hopping tick and waits for both to
// exit. It does not touch the radios' operating mode.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.queue.Close()
	m.wg.Wait()
}

// ErrQueueFull is returned by ScheduleTx when the TX queue is at capacity.
var ErrQueueFull = &QueueError{}

// QueueError marks the bounded-queue-overflow case (spec.md §7 QueueFull)
// so callers can errors.As it rather than compare strings.
type QueueError struct{}

func (*QueueError) Error() string { return "channel: tx queue full" }

// ScheduleTx enqueues req for the TX worker. done is invoked at most once,
// off the caller's goroutine, with the eventual disposition. It is never
// called when ScheduleTx itself returns a non-nil error (spec.md §4.2, §7
// QueueFull), nor for a job that is still queued, waiting for its window
// or awaiting TX-done when the manager's context is cancelled.
func (m *Manager) ScheduleTx(req gwtypes.TxRequest, done func(TxResult)) error {
	if !m.queue.TryPush(txJob{req: req, done: done}) {
		m.log.Warn().Msg("tx queue full, dropping newest schedule request")
		return ErrQueueFull
	}
	return nil
}

// QueueDepth reports the current number of pending TX jobs, for diagnostics.
func (m *Manager) QueueDepth() int { return m.queue.Len() }

// QueueDropped reports the cumulative count of overflowed ScheduleTx calls.
func (m *Manager) QueueDropped() uint64 { return m.queue.Dropped() }

func (m *Manager) txWorkerLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		job, ok := m.queue.Pop(ctx)
		if !ok {
			return
		}
		m.runJob(ctx, job)
	}
}

func (m *Manager) runJob(ctx context.Context, job txJob) {
	if !m.awaitWindow(ctx, job) {
		return
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	req := job.req
	if err := m.tx.Retune(req.Mod.FrequencyHz); err != nil {
		m.log.Warn().Err(err).Msg("tx retune failed")
		m.fail(job)
		return
	}
	if err := m.tx.SetInvertIQ(false, req.InvertIQ); err != nil {
		m.log.Warn().Err(err).Msg("tx invert-iq apply failed")
		m.fail(job)
		return
	}
	if err := m.tx.ApplyModemParams(req.Mod.SpreadingFactor, req.Mod.Bandwidth, req.Mod.CodingRate); err != nil {
		m.log.Warn().Err(err).Msg("tx modem params apply failed")
		m.fail(job)
		return
	}

	done := make(chan bool, 1)
	if err := m.tx.Transmit(ctx, req.Payload, 0, func(ok bool) { done <- ok }); err != nil {
		m.log.Warn().Err(err).Msg("transmit rejected")
		m.fail(job)
		return
	}

	select {
	case ok := <-done:
		if ok {
			m.outcomes.OnTxOk()
			job.done(TxResultOk)
		} else {
			m.fail(job)
		}
	case <-time.After(txDoneTimeout):
		m.log.Warn().Msg("tx-done wait exceeded ceiling")
		m.fail(job)
	case <-ctx.Done():
	}
}

func (m *Manager) fail(job txJob) {
	m.outcomes.OnTxFail()
	job.done(TxResultFailed)
}

// awaitWindow implements spec.md §4.2's scheduling-window arithmetic. It
// returns false if the job was resolved here (discarded as too-early or
// too-late) and should not proceed to transmission.
func (m *Manager) awaitWindow(ctx context.Context, job txJob) bool {
	if job.req.Schedule.Kind == gwtypes.ScheduleImmediate {
		return true
	}

	target := job.req.Schedule.TimestampUs
	delta := deltaUs(target, m.clock.NowUs())

	switch {
	case delta > maxEarlyUs:
		m.outcomes.OnTxFail()
		job.done(TxResultTooEarly)
		return false
	case delta < maxLateUs:
		m.outcomes.OnTxCollision()
		job.done(TxResultTooLate)
		return false
	case delta <= 0:
		return true
	}

	timer := time.NewTimer(time.Duration(delta) * time.Microsecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// deltaUs computes target-now as a wrap-aware signed delta in
// microseconds, per spec.md §3's "comparisons use wrap-aware signed
// deltas" invariant.
func deltaUs(target, now uint32) int64 {
	return int64(int32(target - now))
}
