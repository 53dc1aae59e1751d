package forwarder

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/au915gw/gateway/internal/gwtypes"
)

type rxpkJSON struct {
	Tmst uint32  `json:"tmst"`
	Freq float64 `json:"freq"`
	Chan uint8   `json:"chan"`
	Rfch uint8   `json:"rfch"`
	Stat string  `json:"stat"`
	Modu string  `json:"modu"`
	Datr string  `json:"datr"`
	Codr string  `json:"codr"`
	RSSI int     `json:"rssi"`
	Lsnr float64 `json:"lsnr"`
	Size int     `json:"size"`
	Data string  `json:"data"`
}

type pushDataUplink struct {
	Rxpk []rxpkJSON `json:"rxpk"`
}

type statJSON struct {
	Time string  `json:"time"`
	Rxnb uint64  `json:"rxnb"`
	Rxok uint64  `json:"rxok"`
	Rxfw uint64  `json:"rxfw"`
	Ackr float64 `json:"ackr"`
	Dwnb uint64  `json:"dwnb"`
	Txnb uint64  `json:"txnb"`
}

type pushDataStat struct {
	Stat statJSON `json:"stat"`
}

type txpkJSON struct {
	Imme bool    `json:"imme,omitempty"`
	Tmst *uint32 `json:"tmst,omitempty"`
	Freq float64 `json:"freq"`
	Powe int     `json:"powe"`
	Datr string  `json:"datr"`
	Codr string  `json:"codr"`
	Ipol bool    `json:"ipol"`
	Size int     `json:"size"`
	Data string  `json:"data"`
}

type pullRespJSON struct {
	Txpk *txpkJSON `json:"txpk"`
}

type txAckPayload struct {
	Error string `json:"error,omitempty"`
}

type txAckJSON struct {
	TxpkAck txAckPayload `json:"txpk_ack"`
}

var datrPattern = regexp.MustCompile(`^SF(\d{1,2})BW(\d{2,3})$`)

// encodeDatr renders "SF<n>BW<khz>", e.g. "SF7BW125".
func encodeDatr(sf uint8, bw gwtypes.Bandwidth) string {
	return fmt.Sprintf("SF%dBW%s", sf, bw.String())
}

// parseDatr parses "SF<n>BW<khz>" into spreading factor and bandwidth,
// spec.md §8 property 4.
func parseDatr(s string) (sf uint8, bw gwtypes.Bandwidth, err error) {
	m := datrPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("malformed datr %q", s)
	}
	sfVal, err := strconv.ParseUint(m[1], 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed datr spreading factor %q: %w", m[1], err)
	}
	bwKhz, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed datr bandwidth %q: %w", m[2], err)
	}
	switch bwKhz {
	case 125:
		bw = gwtypes.BW125
	case 250:
		bw = gwtypes.BW250
	case 500:
		bw = gwtypes.BW500
	default:
		return 0, 0, fmt.Errorf("unsupported datr bandwidth %dkHz", bwKhz)
	}
	return uint8(sfVal), bw, nil
}

// hzToMHz converts an exact Hz frequency to MHz. float64 carries far more
// than six significant digits, so json.Marshal's shortest-round-trip
// formatting reproduces the original Hz value exactly — spec.md §8
// property 2.
func hzToMHz(hz uint32) float64 {
	return float64(hz) / 1e6
}

func mhzToHz(mhz float64) uint32 {
	return uint32(math.Round(mhz * 1e6))
}

func descriptorToRxpk(d *gwtypes.RxDescriptor, chanIdx uint8) rxpkJSON {
	stat := "OK"
	if !d.CRCOk {
		stat = "CRC"
	}
	return rxpkJSON{
		Tmst: d.HWTimestampUs,
		Freq: hzToMHz(d.Modulation.FrequencyHz),
		Chan: chanIdx,
		Rfch: d.RFChainIndex,
		Stat: stat,
		Modu: "LORA",
		Datr: encodeDatr(d.Modulation.SpreadingFactor, d.Modulation.Bandwidth),
		Codr: d.Modulation.CodingRate.String(),
		RSSI: int(d.RSSIDBm),
		Lsnr: d.SNRDb(),
		Size: len(d.Payload),
		Data: base64.StdEncoding.EncodeToString(d.Payload),
	}
}

// encodeUplink builds a PUSH_DATA datagram carrying one or more rxpk
// entries.
func encodeUplink(eui [8]byte, token uint16, descs []*gwtypes.RxDescriptor, chanIdx uint8) ([]byte, error) {
	rxpk := make([]rxpkJSON, len(descs))
	for i, d := range descs {
		rxpk[i] = descriptorToRxpk(d, chanIdx)
	}
	body, err := json.Marshal(pushDataUplink{Rxpk: rxpk})
	if err != nil {
		return nil, fmt.Errorf("forwarder: encode uplink: %w", err)
	}
	return encodeWithEUI(token, typePushData, eui, body), nil
}

// encodeStat builds a PUSH_DATA datagram carrying only a stat object.
func encodeStat(eui [8]byte, token uint16, s gwtypes.GatewayStats, ackr float64, when time.Time) ([]byte, error) {
	body, err := json.Marshal(pushDataStat{Stat: statJSON{
		Time: when.UTC().Format("2006-01-02 15:04:05 GMT"),
		Rxnb: s.RxTotal,
		Rxok: s.RxOk,
		Rxfw: s.RxForwarded,
		Ackr: ackr,
		Dwnb: s.TxTotal,
		Txnb: s.TxOk,
	}})
	if err != nil {
		return nil, fmt.Errorf("forwarder: encode stat: %w", err)
	}
	return encodeWithEUI(token, typePushData, eui, body), nil
}

// decodePullResp parses a PULL_RESP JSON body into a TxRequest. Errors are
// always *DecodeError so callers can pick the right TX_ACK error code.
func decodePullResp(body []byte) (gwtypes.TxRequest, error) {
	var parsed pullRespJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeInvalidJSON, Err: err}
	}
	if parsed.Txpk == nil {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeMissingTxpk, Err: fmt.Errorf("no txpk field")}
	}
	txpk := parsed.Txpk

	sf, bw, err := parseDatr(txpk.Datr)
	if err != nil {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeInvalidJSON, Err: err}
	}
	cr, err := gwtypes.ParseCodingRate(txpk.Codr)
	if err != nil {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeInvalidJSON, Err: err}
	}
	payload, err := base64.StdEncoding.DecodeString(txpk.Data)
	if err != nil {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeInvalidJSON, Err: err}
	}
	if len(payload) > 255 {
		return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeTxFailed, Err: fmt.Errorf("payload too long: %d bytes", len(payload))}
	}

	schedule := gwtypes.Schedule{Kind: gwtypes.ScheduleImmediate}
	if !txpk.Imme {
		if txpk.Tmst == nil {
			return gwtypes.TxRequest{}, &DecodeError{Code: ErrCodeInvalidJSON, Err: fmt.Errorf("missing tmst for non-immediate txpk")}
		}
		schedule = gwtypes.Schedule{Kind: gwtypes.ScheduleAt, TimestampUs: *txpk.Tmst}
	}

	return gwtypes.TxRequest{
		Payload: payload,
		Mod: gwtypes.Modulation{
			FrequencyHz:     mhzToHz(txpk.Freq),
			Bandwidth:       bw,
			SpreadingFactor: sf,
			CodingRate:      cr,
		},
		TxPowerDBm: int8(txpk.Powe),
		Schedule:   schedule,
		InvertIQ:   txpk.Ipol,
	}, nil
}

// encodeTxAck builds a TX_ACK datagram. An empty errCode means success and
// omits the txpk_ack JSON body, matching reference gateways.
func encodeTxAck(eui [8]byte, token uint16, errCode string) []byte {
	if errCode == "" {
		return encodeWithEUI(token, typeTxAck, eui, nil)
	}
	body, err := json.Marshal(txAckJSON{TxpkAck: txAckPayload{Error: errCode}})
	if err != nil {
		body = []byte(`{"txpk_ack":{"error":"TX_FAILED"}}`)
	}
	return encodeWithEUI(token, typeTxAck, eui, body)
}

func encodePullData(eui [8]byte, token uint16) []byte {
	return encodeWithEUI(token, typePullData, eui, nil)
}
