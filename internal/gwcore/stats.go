// Package gwcore implements the gateway core: lifecycle, the RX processing
// worker that sits between the channel manager and the protocol engine, the
// atomic stats aggregator, and the small adapters that let the channel
// manager and protocol engine talk to each other without importing one
// another. Grounded on the teacher's UDPPacketForwarder.Start goroutine
// lifecycle and the mutex-protected GatewayInfo bookkeeping in
// internal/gateway/udp_packet_forwarder.go, generalized from "per connected
// gateway" counters to "this gateway's own" counters.
package gwcore

import (
	"sync/atomic"
	"time"

	"github.com/au915gw/gateway/internal/gwtypes"
)

// Stats is the atomic-backed counter set behind gwtypes.GatewayStats. One
// instance per process; implements forwarder.StatsSource,
// forwarder.UplinkAccountant and channel.TxOutcomeSink so none of those
// packages needs to import this one.
type Stats struct {
	rxTotal     atomic.Uint64
	rxOk        atomic.Uint64
	rxBad       atomic.Uint64
	rxForwarded atomic.Uint64
	rxDropped   atomic.Uint64
	txTotal     atomic.Uint64
	txOk        atomic.Uint64
	txFail      atomic.Uint64
	txCollision atomic.Uint64
	txDropped   atomic.Uint64
	lastRxTimeUs atomic.Uint32
	lastTxTimeUs atomic.Uint32

	startedAt time.Time
}

// NewStats constructs a zeroed counter set rooted at the current instant,
// used for UptimeSeconds in Snapshot.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// OnRxFrame records one radio-delivered frame, good or bad CRC, and its
// hardware timestamp.
func (s *Stats) OnRxFrame(ok bool, hwTimestampUs uint32) {
	s.rxTotal.Add(1)
	if ok {
		s.rxOk.Add(1)
	} else {
		s.rxBad.Add(1)
	}
	s.lastRxTimeUs.Store(hwTimestampUs)
}

// OnUplinkForwarded implements forwarder.UplinkAccountant: n descriptors
// were carried in a PUSH_DATA datagram that the socket accepted.
func (s *Stats) OnUplinkForwarded(n int) { s.rxForwarded.Add(uint64(n)) }

// OnUplinkDropped implements forwarder.UplinkAccountant: n descriptors
// could not be encoded or sent and were discarded rather than retried
// indefinitely.
func (s *Stats) OnUplinkDropped(n int) { s.rxDropped.Add(uint64(n)) }

// OnTxOk, OnTxFail, OnTxCollision implement channel.TxOutcomeSink.
func (s *Stats) OnTxOk() {
	s.txTotal.Add(1)
	s.txOk.Add(1)
	s.lastTxTimeUs.Store(uint32(time.Now().UnixMicro()))
}

func (s *Stats) OnTxFail() {
	s.txTotal.Add(1)
	s.txFail.Add(1)
}

func (s *Stats) OnTxCollision() {
	s.txTotal.Add(1)
	s.txCollision.Add(1)
}

// OnTxDropped records a channel.ErrQueueFull rejection, counted separately
// from OnTxFail because the job never reached the radio.
func (s *Stats) OnTxDropped() { s.txDropped.Add(1) }

// Snapshot implements forwarder.StatsSource: a consistent-enough point
// read of every counter for the periodic "stat" PUSH_DATA report. Counters
// are read independently (no global lock), matching spec.md §7's framing
// of GatewayStats as "approximately consistent, not transactional."
func (s *Stats) Snapshot() gwtypes.GatewayStats {
	return gwtypes.GatewayStats{
		RxTotal:       s.rxTotal.Load(),
		RxOk:          s.rxOk.Load(),
		RxBad:         s.rxBad.Load(),
		RxForwarded:   s.rxForwarded.Load(),
		TxTotal:       s.txTotal.Load(),
		TxOk:          s.txOk.Load(),
		TxFail:        s.txFail.Load(),
		TxCollision:   s.txCollision.Load(),
		RxDropped:     s.rxDropped.Load(),
		TxDropped:     s.txDropped.Load(),
		UptimeSeconds: uint64(time.Since(s.startedAt).Seconds()),
		LastRxTimeUs:  s.lastRxTimeUs.Load(),
		LastTxTimeUs:  s.lastTxTimeUs.Load(),
	}
}
