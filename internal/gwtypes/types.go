// Package gwtypes holds the data types shared across the radio driver,
// channel manager, protocol engine and gateway core. Keeping them in one
// leaf package avoids the import cycles those four packages would otherwise
// form around each other.
package gwtypes

import "fmt"

// Bandwidth is a LoRa channel bandwidth in Hz.
type Bandwidth uint32

const (
	BW125 Bandwidth = 125000
	BW250 Bandwidth = 250000
	BW500 Bandwidth = 500000
)

func (b Bandwidth) String() string {
	switch b {
	case BW125:
		return "125"
	case BW250:
		return "250"
	case BW500:
		return "500"
	default:
		return fmt.Sprintf("%d", uint32(b))
	}
}

// CodingRate is a LoRa forward error correction rate, 4/5 .. 4/8.
type CodingRate uint8

const (
	CR4_5 CodingRate = 5
	CR4_6 CodingRate = 6
	CR4_7 CodingRate = 7
	CR4_8 CodingRate = 8
)

func (c CodingRate) String() string {
	return fmt.Sprintf("4/%d", uint8(c))
}

// ParseCodingRate parses a "4/N" string into a CodingRate.
func ParseCodingRate(s string) (CodingRate, error) {
	switch s {
	case "4/5":
		return CR4_5, nil
	case "4/6":
		return CR4_6, nil
	case "4/7":
		return CR4_7, nil
	case "4/8":
		return CR4_8, nil
	default:
		return 0, fmt.Errorf("unrecognised coding rate %q", s)
	}
}

// Modulation describes the on-air parameters of an RX or TX frame.
type Modulation struct {
	FrequencyHz     uint32
	Bandwidth       Bandwidth
	SpreadingFactor uint8 // 7..12
	CodingRate      CodingRate
}

// RxDescriptor is produced by the radio driver on every framing completion.
// It is allocated inside the interrupt handler, moved through one bounded
// queue to the protocol engine, encoded, then discarded. It is never
// mutated after construction and never shared across that hop.
type RxDescriptor struct {
	Payload       []byte
	Modulation    Modulation
	RSSIDBm       int16
	SNRDbQ2       int8 // divide by 4 for dB
	CRCOk         bool
	HWTimestampUs uint32
	RFChainIndex  uint8
}

// SNRDb returns the SNR in dB (SNRDbQ2 / 4).
func (d *RxDescriptor) SNRDb() float64 {
	return float64(d.SNRDbQ2) / 4.0
}

// ScheduleKind selects when a TxRequest should fire.
type ScheduleKind uint8

const (
	ScheduleImmediate ScheduleKind = iota
	ScheduleAt
	ScheduleAtGPS
)

// Schedule is the variant {Immediate | At(timestamp_us) | AtGps(...)}.
// Only Immediate and At are required by this revision; AtGPS is reserved.
type Schedule struct {
	Kind         ScheduleKind
	TimestampUs  uint32
	GPSTimeMicro uint64
}

// TxRequest is produced by the protocol engine from a PULL_RESP and moved
// into the channel manager's TX queue for the TX worker to consume.
type TxRequest struct {
	Payload   []byte
	Mod       Modulation
	TxPowerDBm int8
	Schedule  Schedule
	InvertIQ  bool
}

// RadioConfig is the durable per-radio configuration applied at init or
// on-demand retune.
type RadioConfig struct {
	FrequencyHz     uint32
	SpreadingFactor uint8
	Bandwidth       Bandwidth
	CodingRate      CodingRate
	SyncWord        byte
	PreambleLen     uint16
	CRCOn           bool
	ImplicitHeader  bool
	InvertIQRx      bool
	InvertIQTx      bool
	TxPowerDBm      int8
}

// DefaultRadioConfig returns the spec's nominal defaults: public LoRaWAN
// sync word, preamble 8, CRC on, explicit header, 14dBm.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		SpreadingFactor: 7,
		Bandwidth:       BW125,
		CodingRate:      CR4_5,
		SyncWord:        0x34,
		PreambleLen:     8,
		CRCOn:           true,
		TxPowerDBm:      14,
	}
}

// GatewayStats are monotonic counters, safe for concurrent increment from
// multiple contexts (radio ISR consumer, UDP workers, keepalive tick).
// See internal/gwcore/stats.go for the atomic-backed implementation;
// this struct is the immutable snapshot handed to callers and encoders.
type GatewayStats struct {
	RxTotal      uint64
	RxOk         uint64
	RxBad        uint64
	RxForwarded  uint64
	TxTotal      uint64
	TxOk         uint64
	TxFail       uint64
	TxCollision  uint64
	RxDropped    uint64
	TxDropped    uint64
	UptimeSeconds uint64
	LastRxTimeUs uint32
	LastTxTimeUs uint32
}

// AckRatio implements spec.md §9's resolved formula:
// 100 * push_ack_count / max(push_sent_count, 1).
func AckRatio(pushAckCount, pushSentCount uint64) float64 {
	denom := pushSentCount
	if denom == 0 {
		denom = 1
	}
	return 100 * float64(pushAckCount) / float64(denom)
}

// ForwarderStatus reflects the protocol engine's liveness view of the
// network server.
type ForwarderStatus struct {
	Connected     bool
	PushAckCount  uint64
	PullAckCount  uint64
	LastPullAckAt uint32 // monotonic µs, 0 if never observed
}

// RadioRole pins a RadioHandle's fixed duty inside the channel manager.
// Modeled as a value per spec.md §9 ("roles are values, not subclasses").
type RadioRole uint8

const (
	RoleRX RadioRole = iota
	RoleTX
)

func (r RadioRole) String() string {
	if r == RoleRX {
		return "rx"
	}
	return "tx"
}
