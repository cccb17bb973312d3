package pulse

import (
	"fmt"
	"time"
)

// Continuous is the bursts value for uninterrupted pulse generation.
const Continuous = 0

// params holds one validated generation's timing quantities. Values are
// derived together and replaced wholesale on every parameter change, so a
// failed validation never leaves a half-updated set behind.
type params struct {
	frequency float64 // Hz, as supplied by the caller
	dutyCycle float64 // normalized to [0,1]
	bursts    int     // Continuous for unbounded generation

	period   time.Duration
	highTime time.Duration
	lowTime  time.Duration
}

// newParams validates the supplied frequency, duty cycle and burst count
// and derives the period and phase times. Duty cycles in (1,100] are
// interpreted as percentages. Frequency bounds are backend-specific and
// not checked here.
func newParams(frequency, dutyCycle float64, bursts int) (params, error) {
	if frequency <= 0 {
		return params{}, fmt.Errorf("%w: frequency %v must be positive", ErrInvalidParameter, frequency)
	}
	duty := dutyCycle
	if duty > 1 && duty <= 100 {
		duty /= 100
	}
	if duty < 0 || duty > 1 {
		return params{}, fmt.Errorf("%w: duty cycle %v outside [0,1]", ErrInvalidParameter, dutyCycle)
	}
	if bursts < 0 {
		return params{}, fmt.Errorf("%w: bursts %d must not be negative", ErrInvalidParameter, bursts)
	}

	period := time.Duration(float64(time.Second) / frequency)
	high := time.Duration(float64(period) * duty)
	return params{
		frequency: frequency,
		dutyCycle: duty,
		bursts:    bursts,
		period:    period,
		highTime:  high,
		lowTime:   period - high,
	}, nil
}

// burstsString renders the burst count for human-readable output.
func (p params) burstsString() string {
	if p.bursts == Continuous {
		return "continuous"
	}
	return fmt.Sprintf("%d", p.bursts)
}
