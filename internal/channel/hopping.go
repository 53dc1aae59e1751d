package channel

import (
	"context"
	"time"
)

// EnableHopping starts a periodic tick that advances the RX radio through
// plan, retuning on each tick. Disabled by default (spec.md §4.2); calling
// it twice replaces the previous plan and restarts the ticker. Passing a
// nil or empty plan is a no-op. Must be called after Start, so hopping
// shares the same cancellation as the TX worker.
func (m *Manager) EnableHopping(plan []uint32, interval time.Duration) {
	if len(plan) == 0 || interval <= 0 || m.workerCtx == nil {
		return
	}
	m.hopPlan = plan
	m.hopIdx = 0
	m.hopInterval = interval

	m.wg.Add(1)
	go m.hopLoop(m.workerCtx)
}

func (m *Manager) hopLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.hopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.hopIdx = (m.hopIdx + 1) % len(m.hopPlan)
			freq := m.hopPlan[m.hopIdx]
			if err := m.rx.Retune(freq); err != nil {
				m.log.Warn().Err(err).Uint32("freq_hz", freq).Msg("hop retune failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
