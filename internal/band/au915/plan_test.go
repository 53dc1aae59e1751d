package au915

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/au915gw/gateway/internal/gwtypes"
)

func TestUplinkChannelTable(t *testing.T) {
	require.EqualValues(t, 915200000, UplinkChannelHz(0))
	require.EqualValues(t, 915400000, UplinkChannelHz(1))
	require.EqualValues(t, 915200000+63*200000, UplinkChannelHz(63))
}

func TestDownlinkChannelTable(t *testing.T) {
	require.EqualValues(t, 923300000, DownlinkChannelHz(0))
	require.EqualValues(t, 923300000+7*600000, DownlinkChannelHz(7))
}

func TestSubBandGrouping(t *testing.T) {
	require.Equal(t, 0, SubBandOf(0))
	require.Equal(t, 0, SubBandOf(7))
	require.Equal(t, 1, SubBandOf(8))
	require.Equal(t, 7, SubBandOf(63))
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, SubBandChannels(0))
	require.Equal(t, []int{56, 57, 58, 59, 60, 61, 62, 63}, SubBandChannels(7))
}

// TestRX1Mapping exercises spec.md §4.6's "n/8 capped at 7" rule across the
// full uplink range, including the top sub-band (channels 56..63), which
// maps to the last entry of the 8-channel downlink table.
func TestRX1Mapping(t *testing.T) {
	cases := []struct {
		uplink int
		want   int
	}{
		{0, 0}, {7, 0}, {8, 1}, {63, 7}, {56, 7}, {55, 6},
	}
	for _, c := range cases {
		require.Equal(t, c.want, RX1DownlinkChannel(c.uplink), "uplink channel %d", c.uplink)
	}
}

func TestRX1FrequencyMatchesDownlinkTable(t *testing.T) {
	require.EqualValues(t, DownlinkChannelHz(7), RX1FrequencyHz(63))
	require.EqualValues(t, DownlinkChannelHz(0), RX1FrequencyHz(0))
}

func TestRX2Fixed(t *testing.T) {
	mod := RX2Modulation()
	require.EqualValues(t, 923300000, mod.FrequencyHz)
	require.Equal(t, gwtypes.BW500, mod.Bandwidth)
	require.EqualValues(t, 12, mod.SpreadingFactor)
}

func TestOutOfRangeChannelsClamp(t *testing.T) {
	require.EqualValues(t, UplinkChannelHz(0), UplinkChannelHz(-1))
	require.EqualValues(t, UplinkChannelHz(UplinkCount-1), UplinkChannelHz(1000))
	require.False(t, ValidUplinkChannel(-1))
	require.False(t, ValidUplinkChannel(64))
	require.True(t, ValidUplinkChannel(63))
}
