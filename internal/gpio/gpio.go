// Package gpio provides single-line digital output access and the
// translation between GPIO header pin numbers and BCM line numbers.
package gpio

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is the state of a digital line.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Mode describes how a line has been configured.
type Mode int

const (
	Input Mode = iota
	InputPullup
	InputPulldown
	Output
	OpenDrain
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "INPUT"
	case InputPullup:
		return "INPUT_PULLUP"
	case InputPulldown:
		return "INPUT_PULLDOWN"
	case Output:
		return "OUTPUT"
	case OpenDrain:
		return "OPEN_DRAIN"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// OutputPin is the digital-output collaborator used by the pulse engine.
// Implementations must be safe to Close more than once.
type OutputPin interface {
	SetLevel(Level) error
	Level() (Level, error)
	Mode() Mode
	Close() error
}

// pinToLine maps 40-pin GPIO header positions (index 1..40) to BCM line
// numbers. Power, ground and the ID EEPROM pins are -1.
var pinToLine = [41]int{
	-1,
	-1, -1, // 1  3V3     2  5V
	2, -1, // 3  GPIO2   4  5V
	3, -1, // 5  GPIO3   6  GND
	4, 14, // 7  GPIO4   8  GPIO14
	-1, 15, // 9  GND    10  GPIO15
	17, 18, // 11 GPIO17 12  GPIO18
	27, -1, // 13 GPIO27 14  GND
	22, 23, // 15 GPIO22 16  GPIO23
	-1, 24, // 17 3V3    18  GPIO24
	10, -1, // 19 GPIO10 20  GND
	9, 25, // 21 GPIO9  22  GPIO25
	11, 8, // 23 GPIO11 24  GPIO8
	-1, 7, // 25 GND    26  GPIO7
	-1, -1, // 27 ID_SD  28  ID_SC
	5, -1, // 29 GPIO5  30  GND
	6, 12, // 31 GPIO6  32  GPIO12
	13, -1, // 33 GPIO13 34  GND
	19, 16, // 35 GPIO19 36  GPIO16
	26, 20, // 37 GPIO26 38  GPIO20
	-1, 21, // 39 GND    40  GPIO21
}

const (
	lineMin = 2
	lineMax = 27
)

// LineFromPin converts a GPIO header pin number (1..40) to a BCM line
// number. Power, ground and ID EEPROM pins are rejected.
func LineFromPin(pin int) (int, error) {
	if pin < 1 || pin >= len(pinToLine) {
		return 0, fmt.Errorf("gpio: header pin %d out of range 1..40", pin)
	}
	line := pinToLine[pin]
	if line < 0 {
		return 0, fmt.Errorf("gpio: header pin %d is not a GPIO pin", pin)
	}
	return line, nil
}

// ParseLine converts a pin specifier to a BCM line number. "GPIO<n>" is a
// line number directly; a bare integer is a GPIO header pin number.
func ParseLine(spec string) (int, error) {
	s := strings.TrimSpace(spec)
	if strings.HasPrefix(s, "GPIO") {
		n, err := strconv.Atoi(s[len("GPIO"):])
		if err != nil || n < lineMin || n > lineMax {
			return 0, fmt.Errorf("gpio: bad line specifier %q (want GPIO%d..GPIO%d)", spec, lineMin, lineMax)
		}
		return n, nil
	}
	pin, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("gpio: bad pin specifier %q", spec)
	}
	return LineFromPin(pin)
}

// LineName returns the conventional name of a BCM line, e.g. "GPIO18".
func LineName(line int) string {
	return fmt.Sprintf("GPIO%d", line)
}
