// Package pulse generates periodic digital pulse trains on a GPIO line,
// using the hardware PWM peripheral when the target line supports it and a
// timer-driven software fallback otherwise. Both backends present the same
// contract: frequency, duty cycle and an optional finite burst count.
package pulse

import (
	"gpiopulse/internal/platform"
)

// Mode identifies the backend driving a pulse train.
type Mode int

const (
	Software Mode = iota
	Hardware
)

func (m Mode) String() string {
	if m == Hardware {
		return "HARDWARE"
	}
	return "SOFTWARE"
}

// state tracks a backend through its lifecycle.
type state int

const (
	stateIdle state = iota
	stateRunning
	stateBursting
	stateReleased
)

// generator is the closed set of backend variants behind the Pulse
// dispatcher. Exactly one is constructed per Pulse and held for its
// lifetime.
type generator interface {
	start() error
	stop() error
	close() error
	setFrequency(f float64) error
	setDutyCycle(d float64) error
	setBursts(n int) error
	snapshot() params
	mode() Mode
	describe() string
	teardownGlitches() uint64
}

// Pulse drives one pulse train on one target. It is the only type client
// code touches; all operations are forwarded to the backend selected at
// construction.
//
// No two Pulse instances may target the same physical line; exclusivity is
// enforced by the line request at the collaborator layer.
type Pulse struct {
	g generator
}

// New constructs a pulse generator for the target. The backend is chosen
// once: a caller-supplied pin or a line without hardware PWM support is
// driven in software, otherwise the hardware PWM channel is claimed.
// Use bursts = Continuous for unbounded generation.
//
// Callers should defer Close so the output is returned to a quiescent
// state even on early exit.
func New(target Target, frequency, dutyCycle float64, bursts int, caps platform.Capabilities) (*Pulse, error) {
	p, err := newParams(frequency, dutyCycle, bursts)
	if err != nil {
		return nil, err
	}
	var g generator
	switch resolveMode(target, caps) {
	case Hardware:
		g, err = newHWPulse(target, p, caps)
	default:
		g, err = newSWPulse(target, p)
	}
	if err != nil {
		return nil, err
	}
	return &Pulse{g: g}, nil
}

// Start begins pulse generation. With a finite burst count the generation
// stops by itself once the count is exhausted.
func (p *Pulse) Start() error { return p.g.start() }

// Stop halts generation and forces the output to its resting (low) state.
// It is idempotent and safe to call from any goroutine.
func (p *Pulse) Stop() error { return p.g.stop() }

// Close stops generation and releases every resource the backend created:
// an owned line is closed, a hardware channel is unexported. Borrowed pins
// are left open.
func (p *Pulse) Close() error { return p.g.close() }

// Frequency returns the frequency in Hz as supplied by the caller.
func (p *Pulse) Frequency() float64 { return p.g.snapshot().frequency }

// SetFrequency changes the pulse frequency, revalidating against the
// active backend's bounds.
func (p *Pulse) SetFrequency(f float64) error { return p.g.setFrequency(f) }

// DutyCycle returns the duty cycle normalized to [0,1].
func (p *Pulse) DutyCycle() float64 { return p.g.snapshot().dutyCycle }

// SetDutyCycle changes the duty cycle; values in (1,100] are interpreted
// as percentages.
func (p *Pulse) SetDutyCycle(d float64) error { return p.g.setDutyCycle(d) }

// Bursts returns the configured burst count, or Continuous.
func (p *Pulse) Bursts() int { return p.g.snapshot().bursts }

// SetBursts changes the burst count. Generation is stopped first and must
// be restarted.
func (p *Pulse) SetBursts(n int) error { return p.g.setBursts(n) }

// Mode reports which backend was selected at construction.
func (p *Pulse) Mode() Mode { return p.g.mode() }

// TeardownGlitches reports how many transient device write errors were
// swallowed while stopping. They are tolerated so teardown always
// completes, but persistent growth points at a genuine hardware fault.
func (p *Pulse) TeardownGlitches() uint64 { return p.g.teardownGlitches() }

func (p *Pulse) String() string { return p.g.describe() }
