// Package link contracts the network-link manager spec.md §6 treats as an
// external collaborator: is_connected(), get_ip_info(), and a status-change
// callback, with failover policy fully owned on the other side of the
// interface. Manager is the contract; AlwaysUp is a software stand-in
// satisfying it for the binary's default standalone run and for tests,
// grounded on ystepanoff-nrfcomm/driver/stub's approach of a host-side
// double implementing the same interface as the real hardware-backed
// driver rather than a mock framework.
package link

import "sync"

// IPInfo is the address/gateway/netmask triple get_ip_info() returns when
// connected.
type IPInfo struct {
	Address string
	Gateway string
	Netmask string
}

// StatusCallback is invoked whenever connectivity transitions.
type StatusCallback func(connected bool)

// Manager is the link-manager contract the protocol engine depends on
// (internal/forwarder.Link is the even-narrower IsConnected-only slice of
// this that package actually needs).
type Manager interface {
	IsConnected() bool
	IPInfo() (IPInfo, bool)
	OnStatusChange(cb StatusCallback)
}

// AlwaysUp is a Manager that reports connected forever, for a gateway
// whose link management happens entirely outside this process (e.g. a
// cellular modem's own supervisor) or for tests that don't exercise link
// failover.
type AlwaysUp struct {
	info IPInfo

	mu  sync.Mutex
	cbs []StatusCallback
}

// NewAlwaysUp constructs a Manager that never reports disconnection,
// optionally carrying a fixed IPInfo for diagnostics.
func NewAlwaysUp(info IPInfo) *AlwaysUp {
	return &AlwaysUp{info: info}
}

func (a *AlwaysUp) IsConnected() bool { return true }

func (a *AlwaysUp) IPInfo() (IPInfo, bool) { return a.info, true }

func (a *AlwaysUp) OnStatusChange(cb StatusCallback) {
	a.mu.Lock()
	a.cbs = append(a.cbs, cb)
	a.mu.Unlock()
}

// Stub is a Manager whose connectivity is driven explicitly by test code
// or a development harness via SetConnected, firing registered callbacks
// on each transition.
type Stub struct {
	mu        sync.Mutex
	connected bool
	info      IPInfo
	cbs       []StatusCallback
}

// NewStub constructs a Stub starting disconnected.
func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stub) IPInfo() (IPInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.connected
}

func (s *Stub) OnStatusChange(cb StatusCallback) {
	s.mu.Lock()
	s.cbs = append(s.cbs, cb)
	s.mu.Unlock()
}

// SetConnected updates connectivity and IP info, firing every registered
// callback if the connected state actually changed.
func (s *Stub) SetConnected(connected bool, info IPInfo) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.info = info
	cbs := append([]StatusCallback{}, s.cbs...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, cb := range cbs {
		cb(connected)
	}
}
