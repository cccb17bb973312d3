package pulse

import (
	"fmt"
	"sync"
	"time"

	"gpiopulse/internal/gpio"
)

// Software timing cannot reliably sustain higher rates under a
// non-real-time scheduler.
const swMaxFrequency = 2000

// Seams for tests. The very first toggle is measurably late versus its
// scheduled deadline; backdating the schedule by firstEdgeCorrection
// absorbs it.
var (
	firstEdgeCorrection = 440 * time.Microsecond
	afterFuncFn         = time.AfterFunc
)

// swPulse emulates the pulse contract on a plain digital output with a
// one-shot timer re-armed after every toggle. Each callback advances the
// schedule by the nominal phase time rather than by elapsed wall-clock
// time, so scheduling latency shortens or lengthens only the wait for the
// next edge and never compounds across edges.
type swPulse struct {
	mu sync.Mutex

	p      params
	target Target
	pin    gpio.OutputPin
	owned  bool

	timer *time.Timer
	next  time.Time
	count int
	done  bool
	state state
}

func newSWPulse(target Target, p params) (*swPulse, error) {
	if err := checkSWFrequency(p.frequency); err != nil {
		return nil, err
	}
	s := &swPulse{p: p, target: target, done: true}
	if target.pin != nil {
		m := target.pin.Mode()
		if m != gpio.Output && m != gpio.OpenDrain {
			return nil, fmt.Errorf("%w: supplied pin is in %s mode, need OUTPUT or OPEN_DRAIN", ErrInvalidParameter, m)
		}
		s.pin = target.pin
	} else {
		pin, err := gpio.Open(target.line, gpio.Output)
		if err != nil {
			return nil, fmt.Errorf("pulse: open %s: %w", target.spec, err)
		}
		s.pin = pin
		s.owned = true
	}
	return s, nil
}

func checkSWFrequency(f float64) error {
	if f > swMaxFrequency {
		return fmt.Errorf("%w: %v Hz above software maximum %v Hz", ErrFrequencyOutOfRange, f, float64(swMaxFrequency))
	}
	return nil
}

func (s *swPulse) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateReleased {
		return fmt.Errorf("%w: pin released", ErrInvalidParameter)
	}
	s.done = false
	s.count = 0

	// Degenerate duty cycles are a steady level; no timer churn.
	if s.p.dutyCycle == 0 {
		s.done = true
		s.state = stateIdle
		return s.pin.SetLevel(gpio.Low)
	}
	if s.p.dutyCycle == 1 {
		s.done = true
		s.state = stateRunning
		return s.pin.SetLevel(gpio.High)
	}

	if s.p.bursts == Continuous {
		s.state = stateRunning
	} else {
		s.state = stateBursting
	}
	s.next = time.Now().Add(-firstEdgeCorrection)
	s.runHigh()
	return nil
}

// runHigh drives the high phase and arms the timer for the matching low
// phase. Called with s.mu held on start, and from the timer goroutine
// otherwise.
func (s *swPulse) runHigh() {
	if s.done {
		return
	}
	s.next = s.next.Add(s.p.highTime)
	if err := s.pin.SetLevel(gpio.High); err != nil {
		s.abort(err)
		return
	}
	s.count++
	s.timer = afterFuncFn(time.Until(s.next), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.runLow()
	})
}

// runLow drives the low phase and, unless the burst count is exhausted,
// arms the timer for the next high phase.
func (s *swPulse) runLow() {
	if s.done {
		return
	}
	s.next = s.next.Add(s.p.lowTime)
	if err := s.pin.SetLevel(gpio.Low); err != nil {
		s.abort(err)
		return
	}
	if s.p.bursts != Continuous && s.count >= s.p.bursts {
		s.done = true
		s.timer = nil
		s.state = stateIdle
		return
	}
	s.timer = afterFuncFn(time.Until(s.next), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.runHigh()
	})
}

// abort terminates generation after a pin write failure. The pin is still
// forced low on a best-effort basis; the error is logged rather than
// crashing the timer goroutine.
func (s *swPulse) abort(err error) {
	s.done = true
	s.timer = nil
	s.state = stateIdle
	logf("pulse: %s: pin write failed, stopping generation: %v", s.target.spec, err)
	_ = s.pin.SetLevel(gpio.Low)
}

// stop is idempotent and safe to call from any goroutine. The done flag
// short-circuits any callback that fires after cancellation; a timer that
// is past cancelling is left to run into that check rather than joined,
// so stop never deadlocks even when called around a firing callback.
func (s *swPulse) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *swPulse) stopLocked() {
	if s.state == stateReleased {
		return
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pin != nil {
		_ = s.pin.SetLevel(gpio.Low)
	}
	s.state = stateIdle
}

// close stops generation and closes the pin if it was created here. A
// borrowed pin is never closed.
func (s *swPulse) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateReleased {
		return nil
	}
	s.stopLocked()
	s.state = stateReleased
	if s.owned {
		return s.pin.Close()
	}
	return nil
}

func (s *swPulse) setFrequency(f float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkSWFrequency(f); err != nil {
		return err
	}
	np, err := newParams(f, s.p.dutyCycle, s.p.bursts)
	if err != nil {
		return err
	}
	s.p = np
	return nil
}

func (s *swPulse) setDutyCycle(d float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateBursting && !s.done {
		return fmt.Errorf("%w: cannot change duty cycle mid-burst", ErrBurstInProgress)
	}
	np, err := newParams(s.p.frequency, d, s.p.bursts)
	if err != nil {
		return err
	}
	s.p = np
	// Degenerate duty cycles retire the timer chain and hold a steady
	// level; a later start() resumes scheduling.
	if np.dutyCycle == 0 || np.dutyCycle == 1 {
		s.done = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		if np.dutyCycle == 0 {
			s.state = stateIdle
			return s.pin.SetLevel(gpio.Low)
		}
		s.state = stateRunning
		return s.pin.SetLevel(gpio.High)
	}
	return nil
}

// setBursts stops generation; the new count takes effect on the next
// start.
func (s *swPulse) setBursts(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	np, err := newParams(s.p.frequency, s.p.dutyCycle, n)
	if err != nil {
		return err
	}
	s.stopLocked()
	s.p = np
	s.count = 0
	return nil
}

func (s *swPulse) snapshot() params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *swPulse) mode() Mode { return Software }

func (s *swPulse) teardownGlitches() uint64 { return 0 }

func (s *swPulse) describe() string {
	p := s.snapshot()
	return fmt.Sprintf("pin: %s, frequency: %v, duty cycle: %v, bursts: %s, mode: %s",
		s.target.spec, p.frequency, p.dutyCycle, p.burstsString(), Software)
}
