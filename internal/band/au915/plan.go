// Package au915 implements the AU915 channel plan: the uplink/downlink
// frequency tables, sub-band grouping, and the RX1 downlink-channel mapping
// used by the channel manager and protocol engine. This is the only plan
// shipped in this revision — the tables are deliberately not parameterized
// over other regions.
package au915

import "github.com/au915gw/gateway/internal/gwtypes"

const (
	// UplinkCount is the number of 200kHz uplink channels (0..63).
	UplinkCount = 64
	// UplinkStartHz is channel 0's center frequency.
	UplinkStartHz = 915200000
	// UplinkStepHz is the channel spacing for uplink channels.
	UplinkStepHz = 200000

	// DownlinkCount is the number of 600kHz downlink channels (0..7).
	DownlinkCount = 8
	// DownlinkStartHz is downlink channel 0's center frequency.
	DownlinkStartHz = 923300000
	// DownlinkStepHz is the channel spacing for downlink channels.
	DownlinkStepHz = 600000

	// SubBandCount is the number of eight-channel uplink sub-bands.
	SubBandCount = 8
	// ChannelsPerSubBand is the uplink-channel span of one sub-band.
	ChannelsPerSubBand = UplinkCount / SubBandCount

	// SyncWord is the LoRaWAN public-network sync word used in AU915.
	SyncWord = 0x34

	// RX2FrequencyHz is the fixed RX2 window frequency.
	RX2FrequencyHz = DownlinkStartHz
	// RX2SpreadingFactor is the fixed RX2 spreading factor.
	RX2SpreadingFactor = 12
	// RX2Bandwidth is the fixed RX2 bandwidth.
	RX2Bandwidth = gwtypes.BW500
)

// UplinkChannelHz returns the center frequency of uplink channel n.
// n must be in [0, UplinkCount). Callers outside this package should
// validate n via ValidUplinkChannel first; out-of-range n is clamped to the
// nearest valid channel rather than panicking, since channel indices often
// arrive from network-supplied config.
func UplinkChannelHz(n int) uint32 {
	n = clamp(n, 0, UplinkCount-1)
	return uint32(UplinkStartHz + n*UplinkStepHz)
}

// DownlinkChannelHz returns the center frequency of downlink channel n.
func DownlinkChannelHz(n int) uint32 {
	n = clamp(n, 0, DownlinkCount-1)
	return uint32(DownlinkStartHz + n*DownlinkStepHz)
}

// SubBandOf returns the sub-band index (0..7) that uplink channel n
// belongs to.
func SubBandOf(uplinkChannel int) int {
	return clamp(uplinkChannel, 0, UplinkCount-1) / ChannelsPerSubBand
}

// SubBandChannels returns the uplink channel indices belonging to sub-band
// b (0..7).
func SubBandChannels(b int) []int {
	b = clamp(b, 0, SubBandCount-1)
	chans := make([]int, ChannelsPerSubBand)
	for i := range chans {
		chans[i] = b*ChannelsPerSubBand + i
	}
	return chans
}

// RX1DownlinkChannel maps an uplink channel to its RX1 downlink channel per
// spec.md §4.6: n/8, capped at 7.
func RX1DownlinkChannel(uplinkChannel int) int {
	n := clamp(uplinkChannel, 0, UplinkCount-1) / ChannelsPerSubBand
	if n > DownlinkCount-1 {
		n = DownlinkCount - 1
	}
	return n
}

// RX1FrequencyHz is a convenience wrapper combining RX1DownlinkChannel and
// DownlinkChannelHz.
func RX1FrequencyHz(uplinkChannel int) uint32 {
	return DownlinkChannelHz(RX1DownlinkChannel(uplinkChannel))
}

// ValidUplinkChannel reports whether n is a legal uplink channel index.
func ValidUplinkChannel(n int) bool {
	return n >= 0 && n < UplinkCount
}

// ValidDownlinkChannel reports whether n is a legal downlink channel index.
func ValidDownlinkChannel(n int) bool {
	return n >= 0 && n < DownlinkCount
}

// RX2Modulation returns the fixed RX2 window modulation.
func RX2Modulation() gwtypes.Modulation {
	return gwtypes.Modulation{
		FrequencyHz:     RX2FrequencyHz,
		Bandwidth:       RX2Bandwidth,
		SpreadingFactor: RX2SpreadingFactor,
		CodingRate:      gwtypes.CR4_5,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
