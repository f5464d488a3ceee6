// Package temperature decodes the sensor driver's raw 16-bit code into
// the one-decimal-digit reading used in diagnostics.
package temperature

import "fmt"

// Decode reproduces the exact integer arithmetic the sensor node uses to
// render a raw sample: scaled = (r/10 - 396), whole = scaled/10 and
// fraction = scaled mod 10, displayed as whole.fraction. Both divisions
// are integer divisions,
// matching the C reference's fixed-point rendering.
func Decode(raw uint16) (whole, fraction int) {
	scaled := int(raw)/10 - 396
	return scaled / 10, scaled % 10
}

// String renders a raw sample the way the diagnostic lines do, e.g. "20.4".
func String(raw uint16) string {
	whole, fraction := Decode(raw)
	if fraction < 0 {
		fraction = -fraction
	}
	return fmt.Sprintf("%d.%d", whole, fraction)
}
