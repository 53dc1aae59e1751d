package gwcore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/au915gw/gateway/internal/channel"
	"github.com/au915gw/gateway/internal/forwarder"
	"github.com/au915gw/gateway/internal/gwtypes"
)

// Core wires the channel manager, RX processing worker, protocol engine
// and stats aggregator into one lifecycle: New takes the already-resolved
// gateway identity, Start launches every worker under one cancellation
// context, Stop unwinds in reverse order. Grounded on the teacher's
// cmd/gateway-bridge/main.go signal-handling/cancel sequencing. Only the RX
// worker runs inside the errgroup.WithContext; the channel manager's TX
// worker and the protocol engine's four loops run in goroutines those
// components manage themselves, under the same context but outside the
// group.
type Core struct {
	log zerolog.Logger

	runID   string
	eui     [8]byte
	stats   *Stats
	chanMgr *channel.Manager
	rxw     *RxWorker
	engine  *forwarder.Engine

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Deps bundles the already-constructed collaborators Core sequences.
// The caller (cmd/gateway) builds these in dependency order — RxWorker
// first (it needs no sink yet), then ChannelMgr (needs RxWorker as its
// RxSink), then Engine (needs NewScheduler(ChannelMgr)), then
// RxWorker.SetSink(Engine) to close the loop — because that three-way
// cycle can only be broken by deferring one binding past construction.
// Core itself only owns start/stop sequencing, not that wiring.
type Deps struct {
	EUI        [8]byte
	RxWorker   *RxWorker
	ChannelMgr *channel.Manager
	Engine     *forwarder.Engine
	Log        zerolog.Logger
}

// New constructs a Core from already-wired Deps (see Deps' docs for the
// required construction order).
func New(deps Deps, stats *Stats) *Core {
	return &Core{
		log:     deps.Log,
		runID:   uuid.NewString(),
		eui:     deps.EUI,
		stats:   stats,
		chanMgr: deps.ChannelMgr,
		rxw:     deps.RxWorker,
		engine:  deps.Engine,
	}
}

// RunID returns a per-process correlation identifier used in log fields
// and the diag status endpoint.
func (c *Core) RunID() string { return c.runID }

// Stats implements diag.StatusSource.
func (c *Core) Stats() gwtypes.GatewayStats { return c.stats.Snapshot() }

// ForwarderStatus implements diag.StatusSource.
func (c *Core) ForwarderStatus() gwtypes.ForwarderStatus { return c.engine.Status() }

// Start launches the channel manager (which starts the RX radio's
// continuous receive and its own TX worker), the RX processing worker,
// and the protocol engine's four loops, all under one cancellation scope.
func (c *Core) Start(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.chanMgr.Start(workerCtx); err != nil {
		cancel()
		return fmt.Errorf("gwcore: start channel manager: %w", err)
	}

	g, gctx := errgroup.WithContext(workerCtx)
	c.group = g
	g.Go(func() error {
		c.rxw.Run(gctx)
		return nil
	})

	c.engine.Start(gctx)

	c.log.Info().Str("run_id", c.runID).Str("eui", EUIString(c.eui)).Msg("gateway core started")
	return nil
}

// Stop cancels every worker and waits for them to exit, in the reverse
// order of Start: protocol engine, RX worker, channel manager.
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.engine.Stop()
	c.rxw.Stop()
	c.chanMgr.Stop()
	if c.group != nil {
		_ = c.group.Wait()
	}
	c.log.Info().Str("run_id", c.runID).Msg("gateway core stopped")
}

// EUIString formats an 8-byte EUI as lowercase hex, used in log fields and
// the default gateway identity string.
func EUIString(eui [8]byte) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i, b := range eui {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0F]
	}
	return string(buf)
}
