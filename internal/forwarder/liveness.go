package forwarder

import "sync/atomic"

// liveness tracks server connectivity from the PULL_ACK stream, per
// spec.md §4.3 and the resolved Open Question favoring a signal primitive
// over a polled flag: state changes happen exactly where the PULL_ACK or
// watchdog tick observes them, never via busy-wait.
type liveness struct {
	connected     atomic.Bool
	lastPullAckUs atomic.Uint32
	everAcked     atomic.Bool
	pullAckCount  atomic.Uint64
}

func (l *liveness) onPullAck(nowUs uint32) {
	l.everAcked.Store(true)
	l.lastPullAckUs.Store(nowUs)
	l.pullAckCount.Add(1)
	l.connected.Store(true)
}

// checkStale marks the link disconnected if the last PULL_ACK is older
// than windowUs (wrap-aware), spec.md §8 property 7. It is a no-op before
// the first ever ACK, since "no ack within 30s" only applies once
// liveness has been established at least once — an engine that has never
// heard from the server starts disconnected, not stale-disconnected.
func (l *liveness) checkStale(nowUs uint32, windowUs int64) {
	if !l.everAcked.Load() {
		return
	}
	age := int64(int32(nowUs - l.lastPullAckUs.Load()))
	if age > windowUs {
		l.connected.Store(false)
	}
}

func (l *liveness) isConnected() bool { return l.connected.Load() }
func (l *liveness) lastPullAck() uint32 { return l.lastPullAckUs.Load() }
func (l *liveness) pullAcks() uint64 { return l.pullAckCount.Load() }
