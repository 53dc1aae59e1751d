package radio

import "time"

// spiConn is the narrow slice of periph.io/x/conn/v3/spi.Conn this driver
// needs: a single full-duplex transaction. Declaring our own interface
// (rather than depending on spi.Conn directly in signatures) lets tests
// inject a fake bus without touching real hardware, the same shape as
// periph's own Conn but scoped to one method.
type spiConn interface {
	Tx(w, r []byte) error
}

// outPin is the narrow slice of gpio.PinOut used to drive chip-select-style
// and reset lines.
type outPin interface {
	Out(l bool) error
}

// inPin is the narrow slice of gpio.PinIn used for the DIO0 interrupt line.
type inPin interface {
	In(pullDown bool, risingEdge bool) error
	WaitForEdge(timeout time.Duration) bool
	Read() bool
}
