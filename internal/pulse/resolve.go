package pulse

import (
	"os"
	"path/filepath"

	"gpiopulse/internal/platform"
)

var pwmSysfsBase = "/sys/class/pwm"

// resolveMode selects the backend for a target. A caller-supplied pin is
// always driven in software; hardware mode requires the platform to report
// the line as PWM-capable and the pwm overlay to be loaded (the pwmchip
// directory exists). Anything ambiguous resolves to software. The decision
// is made once, at construction.
func resolveMode(t Target, caps platform.Capabilities) Mode {
	if t.pin != nil {
		return Software
	}
	capable := false
	for _, l := range caps.PulseLines {
		if l == t.line {
			capable = true
			break
		}
	}
	if !capable {
		return Software
	}
	st, err := os.Stat(filepath.Join(pwmSysfsBase, caps.PWMChip))
	if err != nil || !st.IsDir() {
		return Software
	}
	return Hardware
}
