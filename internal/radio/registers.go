package radio

// SX127x register map. Addresses and bit layouts follow the Semtech SX1276
// datasheet, as grounded on the register tables in the pack's periph.io-based
// sx127x driver and stratux's goRFM95W driver.
const (
	regFifo            = 0x00
	regOpMode          = 0x01
	regFrfMSB          = 0x06
	regFrfMID          = 0x07
	regFrfLSB          = 0x08
	regPaConfig        = 0x09
	regOcp             = 0x0B
	regLna             = 0x0C
	regFifoAddrPtr     = 0x0D
	regFifoTxBaseAddr  = 0x0E
	regFifoRxBaseAddr  = 0x0F
	regFifoRxCurrent   = 0x10
	regIrqFlagsMask    = 0x11
	regIrqFlags        = 0x12
	regRxNbBytes       = 0x13
	regModemStat       = 0x18
	regPktSnrValue     = 0x19
	regPktRssiValue    = 0x1A
	regModemConfig1    = 0x1D
	regModemConfig2    = 0x1E
	regSymbTimeoutLSB  = 0x1F
	regPreambleMSB     = 0x20
	regPreambleLSB     = 0x21
	regPayloadLength   = 0x22
	regModemConfig3    = 0x26
	regInvertIQ        = 0x33
	regDetectOptimize  = 0x31
	regInvertIQ2       = 0x3B
	regDetectionThresh = 0x37
	regSyncWord        = 0x39
	regDioMapping1     = 0x40
	regVersion         = 0x42
	regPaDac           = 0x4D
)

// operating mode values (REG_OP_MODE[2:0], within the LoRa bit-7 latch)
const (
	modeSleep         = 0x00
	modeStandby       = 0x01
	modeFsTx          = 0x02
	modeTx            = 0x03
	modeFsRx          = 0x04
	modeRxContinuous  = 0x05
	modeRxSingle      = 0x06
	modeCad           = 0x07

	opModeLongRangeMask = 0x80 // bit7: 1 = LoRa mode
	opModeModeMask      = 0x07
)

// IRQ flag bits (REG_IRQ_FLAGS)
const (
	irqCadDetected   = 0x01
	irqFhssChange    = 0x02
	irqCadDone       = 0x04
	irqTxDone        = 0x08
	irqValidHeader   = 0x10
	irqPayloadCrcErr = 0x20
	irqRxDone        = 0x40
	irqRxTimeout     = 0x80
)

const (
	expectedVersion = 0x12

	fxoscHz   = 32000000
	frfFactor = 1 << 19 // 2^19, per spec.md: FRF = freq_hz * 2^19 / F_XO

	paBoostSelectMask = 0x80 // REG_PA_CONFIG bit7: PA_BOOST pin
	paDacBoostOn      = 0x87
	paDacBoostOff     = 0x84

	invertIQRxBit = 0x40
	invertIQTxBit = 0x01
	invertIQ2On   = 0x19
	invertIQ2Off  = 0x1D

	lnaMaxGainBoost = 0x23 // max gain (0b001) in top 3 bits + LNA boost hf (0b11) in low 2 bits
)

func frfFromHz(freqHz uint32) uint32 {
	return uint32((uint64(freqHz) * uint64(frfFactor)) / uint64(fxoscHz))
}

func bandwidthIndex(bw uint32) uint8 {
	switch bw {
	case 125000:
		return 0x7
	case 250000:
		return 0x8
	case 500000:
		return 0x9
	default:
		return 0x7
	}
}

func codingRateIndex(cr uint8) uint8 {
	// cr is 5..8 ("4/5".."4/8"); register field is cr-4 in [1..4]
	if cr < 5 {
		cr = 5
	}
	if cr > 8 {
		cr = 8
	}
	return cr - 4
}
