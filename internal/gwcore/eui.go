package gwcore

import (
	"encoding/hex"
	"fmt"
	"net"
)

// DeriveEUI synthesizes an 8-byte gateway EUI from a 6-byte MAC address as
// MAC[0:3] || FF FE || MAC[3:6] (spec.md §6), used when none is persisted
// in durable config.
func DeriveEUI(mac net.HardwareAddr) ([8]byte, error) {
	var eui [8]byte
	if len(mac) != 6 {
		return eui, fmt.Errorf("gwcore: derive eui: mac must be 6 bytes, got %d", len(mac))
	}
	copy(eui[0:3], mac[0:3])
	eui[3] = 0xFF
	eui[4] = 0xFE
	copy(eui[5:8], mac[3:6])
	return eui, nil
}

// ParseEUIHex parses a 16-character hex string (as stored in
// config.GatewayConfig.EUIHex) into an 8-byte EUI.
func ParseEUIHex(s string) ([8]byte, error) {
	var eui [8]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return eui, fmt.Errorf("gwcore: parse eui %q: %w", s, err)
	}
	if len(b) != 8 {
		return eui, fmt.Errorf("gwcore: parse eui %q: want 8 bytes, got %d", s, len(b))
	}
	copy(eui[:], b)
	return eui, nil
}

// FirstHardwareAddr returns the MAC address of the first non-loopback
// interface with one, used to derive an EUI when none is configured.
func FirstHardwareAddr() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("gwcore: list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 6 {
			return iface.HardwareAddr, nil
		}
	}
	return nil, fmt.Errorf("gwcore: no interface with a hardware address found")
}
