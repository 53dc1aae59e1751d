// Package clock provides the monotonic microsecond time source shared by
// the radio driver, channel manager, and protocol engine (spec.md §6), and
// the wall-clock accessor used for "time" fields in stat reports.
package clock

import "time"

// Monotonic is a free-running microsecond counter rooted at process start.
// It wraps modulo 2^32 like the hardware timers it stands in for; callers
// must use wrap-aware signed deltas when comparing two readings, per
// spec.md §3.
type Monotonic struct {
	start time.Time
}

// New returns a Monotonic rooted at the current instant.
func New() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NowUs returns the elapsed microseconds since construction, truncated to
// uint32 (wraps every ~71.6 minutes).
func (m *Monotonic) NowUs() uint32 {
	return uint32(time.Since(m.start).Microseconds())
}

// Wall returns the current wall-clock time, used for the stat report's
// "time" field (spec.md §4.3, formatted "YYYY-MM-DD HH:MM:SS GMT" by the
// caller).
func (m *Monotonic) Wall() time.Time {
	return time.Now()
}
