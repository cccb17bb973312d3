package pulse

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gpiopulse/internal/gpio"
)

// fakePin records every level write so tests can assert on the exact edge
// sequence.
type fakePin struct {
	mu      sync.Mutex
	mode    gpio.Mode
	level   gpio.Level
	writes  []gpio.Level
	closes  int
	failSet bool
}

func newFakePin() *fakePin { return &fakePin{mode: gpio.Output} }

func (f *fakePin) SetLevel(l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errors.New("fake pin write failure")
	}
	f.level = l
	f.writes = append(f.writes, l)
	return nil
}

func (f *fakePin) Level() (gpio.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level, nil
}

func (f *fakePin) Mode() gpio.Mode { return f.mode }

func (f *fakePin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePin) writeLog() []gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gpio.Level, len(f.writes))
	copy(out, f.writes)
	return out
}

// manualTimer replaces afterFuncFn so tests control exactly when scheduled
// callbacks fire.
type manualTimer struct {
	mu  sync.Mutex
	cbs []func()
}

func (m *manualTimer) install(t *testing.T) {
	t.Helper()
	old := afterFuncFn
	afterFuncFn = func(d time.Duration, f func()) *time.Timer {
		m.mu.Lock()
		m.cbs = append(m.cbs, f)
		m.mu.Unlock()
		return time.AfterFunc(time.Hour, func() {})
	}
	t.Cleanup(func() { afterFuncFn = old })
}

func (m *manualTimer) fire() bool {
	m.mu.Lock()
	if len(m.cbs) == 0 {
		m.mu.Unlock()
		return false
	}
	cb := m.cbs[0]
	m.cbs = m.cbs[1:]
	m.mu.Unlock()
	cb()
	return true
}

func (m *manualTimer) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cbs)
}

func mustSWPulse(t *testing.T, pin gpio.OutputPin, frequency, duty float64, bursts int) *swPulse {
	t.Helper()
	p, err := newParams(frequency, duty, bursts)
	if err != nil {
		t.Fatalf("newParams: %v", err)
	}
	s, err := newSWPulse(TargetOutput(pin), p)
	if err != nil {
		t.Fatalf("newSWPulse: %v", err)
	}
	return s
}

func TestSoftwareBurst_ExactPhaseCount(t *testing.T) {
	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.5, 10)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 10 periods at 100 Hz is 100ms; allow generous slack.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		idle := s.done && s.state == stateIdle
		s.mu.Unlock()
		if idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("burst did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writes := pin.writeLog()
	var highs, lows int
	for i, l := range writes {
		if l == gpio.High {
			highs++
		} else {
			lows++
		}
		want := gpio.High
		if i%2 == 1 {
			want = gpio.Low
		}
		if l != want {
			t.Fatalf("write %d = %v, want %v (strict HIGH/LOW alternation)", i, l, want)
		}
	}
	if highs != 10 || lows != 10 {
		t.Fatalf("got %d HIGH and %d LOW phases, want 10 and 10", highs, lows)
	}

	// The generation reached idle on its own; no further writes may occur
	// even without an explicit stop.
	time.Sleep(50 * time.Millisecond)
	if n := len(pin.writeLog()); n != len(writes) {
		t.Fatalf("pin written after burst completed: %d -> %d writes", len(writes), n)
	}
}

func TestSoftwareSchedule_NominalDeadlineAccumulation(t *testing.T) {
	mt := &manualTimer{}
	mt.install(t)

	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.25, 3)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.mu.Lock()
	afterStart := s.next
	p := s.p
	s.mu.Unlock()

	// Inject scheduling jitter between callbacks; the deadline must still
	// advance by exactly the nominal phase times.
	for mt.fire() {
		time.Sleep(3 * time.Millisecond)
	}

	s.mu.Lock()
	final := s.next
	done := s.done
	s.mu.Unlock()

	if !done {
		t.Fatalf("burst did not run to completion")
	}
	// start() already advanced one high phase; the remaining schedule is
	// bursts*period minus that first high time, exactly.
	want := time.Duration(p.bursts)*p.period - p.highTime
	if got := final.Sub(afterStart); got != want {
		t.Fatalf("deadline advanced %v, want exactly %v", got, want)
	}
}

func TestSoftwareStop_Idempotent(t *testing.T) {
	pin := newFakePin()
	s := mustSWPulse(t, pin, 200, 0.5, Continuous)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := s.stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if lvl, _ := pin.Level(); lvl != gpio.Low {
		t.Fatalf("pin level after stop = %v, want LOW", lvl)
	}
	n := len(pin.writeLog())
	time.Sleep(30 * time.Millisecond)
	if got := len(pin.writeLog()); got != n {
		t.Fatalf("pin written after stop: %d -> %d writes", n, got)
	}
}

func TestSoftwareStop_LateCallbackIsShortCircuited(t *testing.T) {
	mt := &manualTimer{}
	mt.install(t)

	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.5, Continuous)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !mt.fire() {
		t.Fatalf("no callback armed by start")
	}

	if err := s.stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	n := len(pin.writeLog())

	// A callback that was already in flight when stop ran must not touch
	// the pin.
	for mt.fire() {
	}
	if got := len(pin.writeLog()); got != n {
		t.Fatalf("late callback wrote to pin: %d -> %d writes", n, got)
	}
}

func TestSoftwareDegenerateDuty_NoTimerChurn(t *testing.T) {
	mt := &manualTimer{}
	mt.install(t)

	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0, Continuous)
	if err := s.start(); err != nil {
		t.Fatalf("start duty=0: %v", err)
	}
	if lvl, _ := pin.Level(); lvl != gpio.Low {
		t.Fatalf("duty 0 level=%v want LOW", lvl)
	}
	if mt.pending() != 0 {
		t.Fatalf("duty 0 armed %d timers, want none", mt.pending())
	}

	pin2 := newFakePin()
	s2 := mustSWPulse(t, pin2, 100, 1, Continuous)
	if err := s2.start(); err != nil {
		t.Fatalf("start duty=1: %v", err)
	}
	if lvl, _ := pin2.Level(); lvl != gpio.High {
		t.Fatalf("duty 1 level=%v want HIGH", lvl)
	}
	if mt.pending() != 0 {
		t.Fatalf("duty 1 armed %d timers, want none", mt.pending())
	}
	if err := s2.stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if lvl, _ := pin2.Level(); lvl != gpio.Low {
		t.Fatalf("level after stop=%v want LOW", lvl)
	}
}

func TestSoftwareDutyChange_MidBurstFails(t *testing.T) {
	mt := &manualTimer{}
	mt.install(t)

	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.5, 5)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.setDutyCycle(0.3); !errors.Is(err, ErrBurstInProgress) {
		t.Fatalf("setDutyCycle mid-burst: err=%v, want ErrBurstInProgress", err)
	}
}

func TestSoftwareFrequencyBounds(t *testing.T) {
	pin := newFakePin()
	p, err := newParams(2001, 0.5, Continuous)
	if err != nil {
		t.Fatalf("newParams: %v", err)
	}
	if _, err := newSWPulse(TargetOutput(pin), p); !errors.Is(err, ErrFrequencyOutOfRange) {
		t.Fatalf("construction at 2001 Hz: err=%v, want ErrFrequencyOutOfRange", err)
	}

	s := mustSWPulse(t, pin, 2000, 0.5, Continuous)
	if err := s.setFrequency(3000); !errors.Is(err, ErrFrequencyOutOfRange) {
		t.Fatalf("setFrequency(3000): err=%v, want ErrFrequencyOutOfRange", err)
	}
	if err := s.setFrequency(1500); err != nil {
		t.Fatalf("setFrequency(1500): %v", err)
	}
}

func TestSoftwareBorrowedPin_RequiresOutputMode(t *testing.T) {
	pin := newFakePin()
	pin.mode = gpio.Input
	p, _ := newParams(100, 0.5, Continuous)
	if _, err := newSWPulse(TargetOutput(pin), p); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("input-mode pin accepted: err=%v", err)
	}

	pin.mode = gpio.OpenDrain
	if _, err := newSWPulse(TargetOutput(pin), p); err != nil {
		t.Fatalf("open-drain pin rejected: %v", err)
	}
}

func TestSoftwareClose_NeverClosesBorrowedPin(t *testing.T) {
	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.5, Continuous)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if pin.closes != 0 {
		t.Fatalf("borrowed pin closed %d times, want 0", pin.closes)
	}
	if lvl, _ := pin.Level(); lvl != gpio.Low {
		t.Fatalf("level after close=%v want LOW", lvl)
	}
}

func TestSoftwareCallbackFailure_ForcesLowAndStops(t *testing.T) {
	mt := &manualTimer{}
	mt.install(t)

	old := logf
	logf = func(string, ...interface{}) {}
	t.Cleanup(func() { logf = old })

	pin := newFakePin()
	s := mustSWPulse(t, pin, 100, 0.5, Continuous)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	pin.mu.Lock()
	pin.failSet = true
	pin.mu.Unlock()
	mt.fire() // low phase fails

	s.mu.Lock()
	done, st := s.done, s.state
	s.mu.Unlock()
	if !done || st != stateIdle {
		t.Fatalf("generation not terminated after pin failure: done=%v state=%d", done, st)
	}

	// Pin is usable again: the forced-low on the way out must land.
	pin.mu.Lock()
	pin.failSet = false
	pin.mu.Unlock()
	if err := s.stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if lvl, _ := pin.Level(); lvl != gpio.Low {
		t.Fatalf("level=%v want LOW", lvl)
	}
}
