package gwcore

import (
	"github.com/au915gw/gateway/internal/channel"
	"github.com/au915gw/gateway/internal/forwarder"
	"github.com/au915gw/gateway/internal/gwtypes"
)

// txScheduler implements forwarder.Scheduler over *channel.Manager. The
// two packages' callback shapes differ by design — channel.Manager
// reports a channel.TxResult enum so the channel package never needs to
// know about Semtech error-code strings, while forwarder.Scheduler wants
// exactly the (ok, errCode) pair the TX_ACK wire format carries — so this
// adapter is the one place that translates between them.
type txScheduler struct {
	mgr *channel.Manager
}

// NewScheduler wraps mgr as a forwarder.Scheduler.
func NewScheduler(mgr *channel.Manager) forwarder.Scheduler {
	return &txScheduler{mgr: mgr}
}

func (s *txScheduler) ScheduleTx(req gwtypes.TxRequest, done func(ok bool, errCode string)) error {
	return s.mgr.ScheduleTx(req, func(result channel.TxResult) {
		switch result {
		case channel.TxResultOk:
			done(true, "")
		case channel.TxResultTooLate:
			done(false, forwarder.ErrCodeTooLate)
		case channel.TxResultTooEarly:
			done(false, forwarder.ErrCodeTooEarly)
		default:
			done(false, forwarder.ErrCodeTxFailed)
		}
	})
}
