package pulse

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"gpiopulse/internal/platform"
)

// Hardware backend frequency bounds. Bursts are timed in software even in
// hardware mode, so they carry a tighter frequency cap and a duration
// floor below which the burst would finish before the enable write lands.
const (
	hwMinFrequency      = 0.1
	hwMaxFrequency      = 5_000_000
	hwMaxBurstFrequency = 10_000
	minBurstDuration    = 750 * time.Microsecond
)

// Seams for tests. The kernel materializes an exported pwm channel
// asynchronously and the device is known to glitch on rapid state changes,
// hence the settle delays.
var (
	exportSettle       = 1 * time.Second
	deviceRetrySettle  = 500 * time.Millisecond
	sysfsWriteDeadline = 2 * time.Second
	logf               = log.Printf
)

// hwPulse drives one channel of the hardware PWM peripheral through its
// sysfs interface: a pwmchip directory holding one pwm<channel>
// subdirectory with period, duty_cycle and enable entries (plain-text
// integers; nanoseconds for period and duty_cycle).
type hwPulse struct {
	mu sync.Mutex

	p        params
	target   Target
	channel  int
	chipDir  string
	devDir   string
	burstDur time.Duration // 0 when continuous

	burstTimer *time.Timer
	state      state

	// glitches counts teardown write errors that were swallowed to keep
	// stop() and close() from failing. Silently losing all of them would
	// hide genuine hardware faults.
	glitches atomic.Uint64
}

func newHWPulse(target Target, p params, caps platform.Capabilities) (*hwPulse, error) {
	if err := checkHWFrequency(p.frequency); err != nil {
		return nil, err
	}
	burstDur, err := hwBurstDuration(p)
	if err != nil {
		return nil, err
	}
	channel, err := lineToChannel(target.line, caps.Pi5)
	if err != nil {
		return nil, err
	}

	chipDir := filepath.Join(pwmSysfsBase, caps.PWMChip)
	h := &hwPulse{
		p:        p,
		target:   target,
		channel:  channel,
		chipDir:  chipDir,
		devDir:   filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel)),
		burstDur: burstDur,
	}
	if err := h.ensureExported(); err != nil {
		return nil, err
	}
	if err := h.rest(); err != nil {
		return nil, err
	}
	return h, nil
}

// checkHWFrequency enforces the hardware backend bounds.
func checkHWFrequency(f float64) error {
	if f > hwMaxFrequency {
		return fmt.Errorf("%w: %v Hz above hardware maximum %v Hz", ErrFrequencyOutOfRange, f, float64(hwMaxFrequency))
	}
	if f < hwMinFrequency {
		return fmt.Errorf("%w: %v Hz below hardware minimum %v Hz", ErrFrequencyOutOfRange, f, hwMinFrequency)
	}
	return nil
}

// hwBurstDuration computes how long the software countdown that disables
// the channel must run: the full burst minus half a low phase, so the
// final period completes but no extra pulse starts, minus a settle margin
// for the enable write itself.
func hwBurstDuration(p params) (time.Duration, error) {
	if p.bursts == Continuous {
		return 0, nil
	}
	if p.frequency > hwMaxBurstFrequency {
		return 0, fmt.Errorf("%w: %v Hz above burst maximum %v Hz", ErrBurstFrequencyTooHigh, p.frequency, float64(hwMaxBurstFrequency))
	}
	d := time.Duration(p.bursts)*p.period - p.lowTime/2
	if d < minBurstDuration {
		return 0, fmt.Errorf("%w: burst would last %v, need at least %v", ErrBurstTooShort, d, minBurstDuration)
	}
	return d - minBurstDuration, nil
}

// lineToChannel maps a BCM line to its PWM channel. GPIO12/13 are channels
// 0/1 on every model; GPIO18/19 are channels 2/3 on a Pi 5 and 0/1 before
// it.
func lineToChannel(line int, pi5 bool) (int, error) {
	var channel int
	switch {
	case line == 12 || line == 13:
		channel = line - 12
	case pi5:
		channel = line - 16
	default:
		channel = line - 18
	}
	maxChannel := 1
	if pi5 {
		maxChannel = 3
	}
	if channel < 0 || channel > maxChannel {
		return 0, fmt.Errorf("%w: no hardware PWM channel for GPIO%d", ErrUnsupportedLine, line)
	}
	return channel, nil
}

// ensureExported creates the pwm<channel> device directory if it does not
// exist yet. The kernel materializes it asynchronously after the export
// write, so a settle delay is required before concluding failure.
func (h *hwPulse) ensureExported() error {
	if isDir(h.devDir) {
		return nil
	}
	if err := writeSysfs(filepath.Join(h.chipDir, "export"), strconv.Itoa(h.channel)); err != nil {
		if !isDir(h.devDir) {
			return fmt.Errorf("%w: export pwm%d: %v", ErrDeviceUnavailable, h.channel, err)
		}
	}
	time.Sleep(exportSettle)
	if !isDir(h.devDir) {
		return fmt.Errorf("%w: %s not created after export", ErrDeviceUnavailable, h.devDir)
	}
	return nil
}

// rest forces the channel into its resting state: disabled, duty zero.
// Freshly exported channels sometimes reject the first write; one retry
// after a settle delay, preceded by a period write, usually convinces
// them.
func (h *hwPulse) rest() error {
	if err := h.writeDevice("duty_cycle", 0); err == nil {
		if err := h.writeDevice("enable", 0); err == nil {
			return nil
		}
	}
	time.Sleep(deviceRetrySettle)
	if err := h.writeDevice("period", h.periodNs()); err != nil {
		return fmt.Errorf("%w: could not establish pwm%d: %v", ErrDeviceUnavailable, h.channel, err)
	}
	if err := h.writeDevice("enable", 0); err != nil {
		return fmt.Errorf("%w: could not establish pwm%d: %v", ErrDeviceUnavailable, h.channel, err)
	}
	return nil
}

func (h *hwPulse) periodNs() int64 {
	return h.p.period.Nanoseconds()
}

func (h *hwPulse) dutyNs() int64 {
	return int64(math.Round(float64(h.p.period.Nanoseconds()) * h.p.dutyCycle))
}

// applyTiming writes the full timing set in the strict order duty 0 →
// period → duty, so the old duty cycle is never active at the new
// (possibly shorter) period.
func (h *hwPulse) applyTiming() error {
	if err := h.writeDevice("duty_cycle", 0); err != nil {
		return err
	}
	if err := h.writeDevice("period", h.periodNs()); err != nil {
		return err
	}
	return h.writeDevice("duty_cycle", h.dutyNs())
}

func (h *hwPulse) start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateReleased {
		return fmt.Errorf("%w: channel released", ErrDeviceUnavailable)
	}
	if err := h.applyTiming(); err != nil {
		return fmt.Errorf("pulse: apply timing: %w", err)
	}
	if err := h.writeDevice("enable", 1); err != nil {
		return fmt.Errorf("pulse: enable channel: %w", err)
	}
	if h.p.bursts != Continuous {
		h.state = stateBursting
		h.burstTimer = time.AfterFunc(h.burstDur, func() { _ = h.stop() })
	} else {
		h.state = stateRunning
	}
	return nil
}

// stop is idempotent and never fails: a failure here would leak an enabled
// channel, which is worse than a logged glitch. Both resting writes are
// always attempted; errors are counted and logged.
func (h *hwPulse) stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	return nil
}

func (h *hwPulse) stopLocked() {
	if h.state == stateReleased {
		return
	}
	if h.burstTimer != nil {
		h.burstTimer.Stop()
		h.burstTimer = nil
	}
	if err := h.writeDevice("duty_cycle", 0); err != nil {
		h.glitches.Add(1)
		logf("pulse: glitch stopping pwm%d: duty_cycle: %v", h.channel, err)
	}
	if err := h.writeDevice("enable", 0); err != nil {
		h.glitches.Add(1)
		logf("pulse: glitch stopping pwm%d: enable: %v", h.channel, err)
	}
	h.state = stateIdle
}

// close stops the channel and unexports it unconditionally, even when a
// prior operation failed.
func (h *hwPulse) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateReleased {
		return nil
	}
	h.stopLocked()
	h.state = stateReleased
	if err := writeSysfs(filepath.Join(h.chipDir, "unexport"), strconv.Itoa(h.channel)); err != nil {
		return fmt.Errorf("pulse: unexport pwm%d: %w", h.channel, err)
	}
	return nil
}

func (h *hwPulse) setFrequency(f float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := checkHWFrequency(f); err != nil {
		return err
	}
	np, err := newParams(f, h.p.dutyCycle, h.p.bursts)
	if err != nil {
		return err
	}
	burstDur, err := hwBurstDuration(np)
	if err != nil {
		return err
	}
	h.p = np
	h.burstDur = burstDur
	if err := h.applyTiming(); err != nil {
		return fmt.Errorf("pulse: apply timing: %w", err)
	}
	return nil
}

func (h *hwPulse) setDutyCycle(d float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	np, err := newParams(h.p.frequency, d, h.p.bursts)
	if err != nil {
		return err
	}
	h.p = np
	if err := h.applyTiming(); err != nil {
		return fmt.Errorf("pulse: apply timing: %w", err)
	}
	return nil
}

// setBursts stops the channel; the new count takes effect on the next
// start.
func (h *hwPulse) setBursts(n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	np, err := newParams(h.p.frequency, h.p.dutyCycle, n)
	if err != nil {
		return err
	}
	burstDur, err := hwBurstDuration(np)
	if err != nil {
		return err
	}
	h.stopLocked()
	h.p = np
	h.burstDur = burstDur
	return nil
}

func (h *hwPulse) snapshot() params {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

func (h *hwPulse) mode() Mode { return Hardware }

// teardownGlitches reports how many teardown write errors were swallowed.
func (h *hwPulse) teardownGlitches() uint64 { return h.glitches.Load() }

func (h *hwPulse) describe() string {
	p := h.snapshot()
	return fmt.Sprintf("pin: %s, frequency: %v, duty cycle: %v, bursts: %s, mode: %s",
		h.target.spec, p.frequency, p.dutyCycle, p.burstsString(), Hardware)
}

func (h *hwPulse) writeDevice(name string, v int64) error {
	return writeSysfs(filepath.Join(h.devDir, name), strconv.FormatInt(v, 10))
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// writeSysfs writes a value to a sysfs attribute. O_WRONLY without
// O_TRUNC/O_CREATE: some attributes reject truncation flags outright.
// Immediately after export, udev may still be adjusting permissions, so
// transient EACCES/EPERM/ENOENT are retried until a deadline.
func writeSysfs(path, value string) error {
	deadline := time.Now().Add(sysfsWriteDeadline)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value + "\n")
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		err = werr
		if err == nil {
			err = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) ||
		errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT)
}
