package gwcore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/au915gw/gateway/internal/gwtypes"
	"github.com/au915gw/gateway/internal/pipeline"
)

// rxQueueCapacity is the RX queue's fixed capacity, spec.md §4.4.
const rxQueueCapacity = 32

// UplinkSink is the narrow surface the RX worker forwards accepted frames
// to. *forwarder.Engine satisfies it via SubmitUplink.
type UplinkSink interface {
	SubmitUplink(*gwtypes.RxDescriptor)
}

// RxWorker owns the bounded RX queue: HandleRx (called from the channel
// manager, itself called from the radio's interrupt-servicing goroutine)
// pushes onto it without blocking, and a single consumer goroutine drains
// it, counts CRC outcomes, and forwards CRC-good frames to the protocol
// engine. This is the one consumer spec.md §4.4 names for the RX queue;
// the protocol engine's own batching buffer is a separate accumulator, not
// a second reader of this queue (see internal/forwarder/engine.go).
type RxWorker struct {
	log           zerolog.Logger
	queue         *pipeline.Queue[*gwtypes.RxDescriptor]
	stats         *Stats
	sink          UplinkSink
	forwardBadCRC bool

	wg sync.WaitGroup
}

// NewRxWorker constructs an RX worker with no uplink sink bound yet. The
// worker must be usable as a channel.RxSink (HandleRx only touches the
// queue) before the protocol engine that will eventually consume its
// output exists, since construction order is: RxWorker, then
// channel.Manager (which needs the RxWorker as its RxSink), then the
// protocol engine (which the RxWorker needs as its UplinkSink) — a cycle
// SetSink breaks by deferring the second binding. stats is updated for
// every descriptor regardless of CRC outcome. Whether a CRC-bad descriptor
// is still forwarded is left at its default (off, spec.md line 150's
// "(configurable)") and set with WithForwardBadCRC.
func NewRxWorker(stats *Stats, log zerolog.Logger, opts ...RxWorkerOption) *RxWorker {
	w := &RxWorker{
		log:   log,
		queue: pipeline.NewQueue[*gwtypes.RxDescriptor](rxQueueCapacity),
		stats: stats,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// RxWorkerOption configures an RxWorker at construction time.
type RxWorkerOption func(*RxWorker)

// WithForwardBadCRC controls whether descriptors that failed the radio's
// CRC check are still handed to the protocol engine instead of being
// dropped in Run. Off by default; a network server that wants to inspect
// corrupted frames (e.g. for RF diagnostics) turns this on.
func WithForwardBadCRC(forward bool) RxWorkerOption {
	return func(w *RxWorker) { w.forwardBadCRC = forward }
}

// SetSink binds the uplink destination. Must be called before Run; safe
// to call exactly once during process wiring, before any worker
// goroutines start.
func (w *RxWorker) SetSink(sink UplinkSink) { w.sink = sink }

// HandleRx implements channel.RxSink. Never blocks: on overflow the
// oldest-held descriptor is kept and this one is dropped, logged once per
// occurrence at Warn so sustained overflow is visible without flooding at
// Info.
func (w *RxWorker) HandleRx(desc *gwtypes.RxDescriptor) {
	if !w.queue.TryPush(desc) {
		w.log.Warn().Uint64("dropped_total", w.queue.Dropped()).Msg("rx queue full, dropping newest frame")
	}
}

// QueueDepth and QueueDropped expose the RX queue's backpressure state for
// diagnostics.
func (w *RxWorker) QueueDepth() int      { return w.queue.Len() }
func (w *RxWorker) QueueDropped() uint64 { return w.queue.Dropped() }

// Run drains the queue until ctx is cancelled or the queue is closed.
// Blocking call; launch it in its own goroutine.
func (w *RxWorker) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	for {
		desc, ok := w.queue.Pop(ctx)
		if !ok {
			return
		}
		w.stats.OnRxFrame(desc.CRCOk, desc.HWTimestampUs)
		if !desc.CRCOk && !w.forwardBadCRC {
			continue
		}
		w.sink.SubmitUplink(desc)
	}
}

// Stop closes the queue, which unblocks Run, then waits for it to return.
func (w *RxWorker) Stop() {
	w.queue.Close()
	w.wg.Wait()
}
