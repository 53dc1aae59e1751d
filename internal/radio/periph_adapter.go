package radio

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// periphOut adapts a periph.io gpio.PinOut to the driver's narrow outPin
// interface so production wiring (cmd/gateway) can hand in real hardware
// pins while tests hand in a plain struct.
type periphOut struct {
	pin gpio.PinOut
}

func (p periphOut) Out(high bool) error {
	if high {
		return p.pin.Out(gpio.High)
	}
	return p.pin.Out(gpio.Low)
}

// periphIn adapts a periph.io gpio.PinIn to the driver's narrow inPin
// interface.
type periphIn struct {
	pin gpio.PinIn
}

func (p periphIn) In(pullDown, risingEdge bool) error {
	pull := gpio.Float
	if pullDown {
		pull = gpio.PullDown
	}
	edge := gpio.NoEdge
	if risingEdge {
		edge = gpio.RisingEdge
	}
	return p.pin.In(pull, edge)
}

func (p periphIn) WaitForEdge(timeout time.Duration) bool {
	return p.pin.WaitForEdge(timeout)
}

func (p periphIn) Read() bool {
	return p.pin.Read() == gpio.High
}

// WrapOutPin exposes a real periph.io output pin (reset, CS override, ...)
// as the driver's outPin.
func WrapOutPin(pin gpio.PinOut) outPin { return periphOut{pin: pin} }

// WrapInPin exposes a real periph.io input pin (DIO0) as the driver's inPin.
func WrapInPin(pin gpio.PinIn) inPin { return periphIn{pin: pin} }
