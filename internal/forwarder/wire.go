// Package forwarder implements the Semtech UDP packet-forwarder protocol:
// wire framing, token/ack accounting, JSON+base64 encoding of uplinks and
// downlinks, liveness tracking, and statistics reporting. Grounded on the
// teacher's internal/gateway/udp_packet_forwarder.go, adapted to run the
// opposite direction — the teacher decodes PUSH_DATA/PULL_DATA as a server;
// this engine originates them as a gateway and decodes PUSH_ACK/PULL_ACK/
// PULL_RESP instead.
package forwarder

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the only Semtech packet-forwarder version this engine
// speaks.
const ProtocolVersion = 2

// Packet type identifiers, spec.md §4.3.
const (
	typePushData = 0x00
	typePushAck  = 0x01
	typePullData = 0x02
	typePullResp = 0x03
	typePullAck  = 0x04
	typeTxAck    = 0x05
)

const minPacketLen = 4

type header struct {
	version byte
	token   uint16
	typ     byte
}

func encodeHeader(buf []byte, token uint16, typ byte) {
	buf[0] = ProtocolVersion
	binary.BigEndian.PutUint16(buf[1:3], token)
	buf[3] = typ
}

func decodeHeader(data []byte) (header, error) {
	if len(data) < minPacketLen {
		return header{}, fmt.Errorf("forwarder: short packet (%d bytes)", len(data))
	}
	return header{
		version: data[0],
		token:   binary.BigEndian.Uint16(data[1:3]),
		typ:     data[3],
	}, nil
}

// encodeWithEUI builds a 12-byte header + EUI packet, optionally followed
// by a JSON payload.
func encodeWithEUI(token uint16, typ byte, eui [8]byte, jsonPayload []byte) []byte {
	buf := make([]byte, 12+len(jsonPayload))
	encodeHeader(buf[:4], token, typ)
	copy(buf[4:12], eui[:])
	copy(buf[12:], jsonPayload)
	return buf
}
