package pulse

import (
	"gpiopulse/internal/gpio"
)

// Target identifies the destination of a pulse train: either a BCM line
// the engine will own for its lifetime, or a caller-supplied output pin
// that is borrowed and never closed by the engine.
type Target struct {
	line int
	pin  gpio.OutputPin
	spec string
}

// TargetLine targets a BCM line by number. The selected backend opens and
// owns the line.
func TargetLine(line int) Target {
	return Target{line: line, spec: gpio.LineName(line)}
}

// TargetPin targets a GPIO header pin by its position on the 40-pin header.
func TargetPin(headerPin int) (Target, error) {
	line, err := gpio.LineFromPin(headerPin)
	if err != nil {
		return Target{}, err
	}
	return Target{line: line, spec: gpio.LineName(line)}, nil
}

// TargetOutput targets an already-open output pin. The pin is borrowed:
// pulse generation always runs in software mode and the pin is never
// closed by the engine.
func TargetOutput(p gpio.OutputPin) Target {
	return Target{pin: p, spec: "external pin"}
}

// ParseTarget parses a pin specifier, either "GPIO<line>" or a header pin
// number.
func ParseTarget(spec string) (Target, error) {
	line, err := gpio.ParseLine(spec)
	if err != nil {
		return Target{}, err
	}
	return Target{line: line, spec: gpio.LineName(line)}, nil
}
