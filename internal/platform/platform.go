// Package platform detects the host single-board computer and the GPIO
// lines on which it can generate hardware-timed pulses.
//
// Capabilities are detected once at process start and passed around as a
// value; they are not re-evaluated when the environment changes.
package platform

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Seams for tests.
var (
	modelPaths = []string{
		"/sys/firmware/devicetree/base/model",
		"/proc/device-tree/model",
	}
	pwmSysfsBase   = "/sys/class/pwm"
	bootConfigPath = "/boot/firmware/config.txt"
	uptimePath     = "/proc/uptime"
	logf           = log.Printf
)

// The pwm-2chan overlay normally routes PWM to GPIO18/19; this alternate
// form routes it to GPIO12/13 instead.
const altOverlayLine = "dtoverlay=pwm-2chan,pin=12,func=4,pin2=13,func2=4"

// Capabilities describes what the detected platform can do.
type Capabilities struct {
	// Model is the device-tree model string, e.g. "Raspberry Pi 4 Model B".
	Model string
	// Pi5 reports whether the host is a Raspberry Pi 5.
	Pi5 bool
	// PWMChip is the sysfs pwmchip entry driving the header PWM lines.
	PWMChip string
	// PulseLines are the BCM lines routed to the hardware PWM peripheral.
	PulseLines []int
}

// Detect inspects the host once and returns its capabilities. On a machine
// that is not a known SBC the zero capability set is returned and every
// line resolves to software pulse generation.
func Detect() Capabilities {
	caps := Capabilities{Model: readModel()}
	caps.Pi5 = strings.Contains(caps.Model, "Raspberry Pi 5")
	if caps.Pi5 {
		caps.PWMChip = "pwmchip2"
	} else {
		caps.PWMChip = "pwmchip0"
	}
	caps.PulseLines = pulseLines()
	return caps
}

// PWMChipPath returns the sysfs directory of the hardware PWM controller.
func (c Capabilities) PWMChipPath() string {
	return filepath.Join(pwmSysfsBase, c.PWMChip)
}

// HardwarePulseCapable reports whether the given BCM line can be driven by
// the hardware PWM peripheral. It also requires the pwm overlay to be
// loaded, which is visible as the pwmchip directory existing in sysfs.
func (c Capabilities) HardwarePulseCapable(line int) bool {
	st, err := os.Stat(c.PWMChipPath())
	if err != nil || !st.IsDir() {
		return false
	}
	for _, l := range c.PulseLines {
		if l == line {
			return true
		}
	}
	return false
}

func readModel() string {
	for _, p := range modelPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		model := strings.TrimSpace(string(b))
		model = strings.Trim(model, "\x00")
		if model != "" {
			return model
		}
	}
	return ""
}

// pulseLines determines which BCM lines the pwm-2chan overlay routes PWM
// to, by scanning the boot config for the GPIO12/13 variant. The default
// routing is GPIO18/19.
func pulseLines() []int {
	lines := []int{18, 19}

	f, err := os.Open(bootConfigPath)
	if err != nil {
		return lines
	}
	defer f.Close()

	if modified, err := modifiedSinceBoot(bootConfigPath); err == nil && modified {
		logf("platform: %s was modified since boot; PWM line detection may be stale", bootConfigPath)
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == altOverlayLine {
			return []int{12, 13}
		}
	}
	return lines
}

// modifiedSinceBoot reports whether the file changed after the system
// booted, using /proc/uptime to reconstruct the boot time.
func modifiedSinceBoot(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	b, err := os.ReadFile(uptimePath)
	if err != nil {
		return false, err
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return false, fmt.Errorf("platform: malformed %s", uptimePath)
	}
	up, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return false, err
	}
	bootTime := time.Now().Add(-time.Duration(up * float64(time.Second)))
	return st.ModTime().After(bootTime), nil
}
