package pulse

import "errors"

// Error kinds surfaced by the pulse engine. They are wrapped with context
// where they occur; match with errors.Is.
var (
	// ErrInvalidParameter reports a duty cycle outside [0,1] after percent
	// normalization, or another malformed parameter.
	ErrInvalidParameter = errors.New("pulse: invalid parameter")
	// ErrFrequencyOutOfRange reports a frequency outside the bounds of the
	// active backend.
	ErrFrequencyOutOfRange = errors.New("pulse: frequency out of range")
	// ErrBurstFrequencyTooHigh reports a hardware burst above 10 kHz; burst
	// duration is timed in software and needs margin.
	ErrBurstFrequencyTooHigh = errors.New("pulse: burst frequency too high")
	// ErrBurstTooShort reports a hardware burst that would complete before
	// the enable write could take effect.
	ErrBurstTooShort = errors.New("pulse: burst too short")
	// ErrBurstInProgress reports a duty-cycle change while a software burst
	// is mid-flight.
	ErrBurstInProgress = errors.New("pulse: burst in progress")
	// ErrUnsupportedLine reports a line with no hardware PWM channel.
	ErrUnsupportedLine = errors.New("pulse: unsupported line")
	// ErrDeviceUnavailable reports that the hardware PWM channel could not
	// be created even after a retry.
	ErrDeviceUnavailable = errors.New("pulse: device unavailable")
)
