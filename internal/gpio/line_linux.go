//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests the given BCM line as a digital output, initially low, via
// the Linux GPIO character device.
//
// Pre-Pi-5 kernels expose all header GPIOs on gpiochip0; early Pi 5 kernels
// used gpiochip4 (later reverted, leaving gpiochip4 as a symlink). Rather
// than hard-coding either, every gpiochip device is tried until one accepts
// the line by name.
func Open(line int, mode Mode) (OutputPin, error) {
	if mode != Output && mode != OpenDrain {
		return nil, fmt.Errorf("gpio: mode %s is not an output mode", mode)
	}
	lineName := LineName(line)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gpiopulse")}
	if mode == OpenDrain {
		opts = append(opts, gpiocdev.AsOpenDrain)
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		l, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &cdevPin{chip: chip, line: l, mode: mode}, nil
	}

	return nil, fmt.Errorf("gpio: line %q not found (or busy)", lineName)
}

type cdevPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	mode Mode
}

func (p *cdevPin) SetLevel(l Level) error {
	if p == nil || p.line == nil {
		return fmt.Errorf("gpio: pin is closed")
	}
	v := 0
	if l == High {
		v = 1
	}
	return p.line.SetValue(v)
}

func (p *cdevPin) Level() (Level, error) {
	if p == nil || p.line == nil {
		return Low, fmt.Errorf("gpio: pin is closed")
	}
	v, err := p.line.Value()
	if err != nil {
		return Low, err
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

func (p *cdevPin) Mode() Mode { return p.mode }

// Close drives the line low and releases it. Safe to call repeatedly.
func (p *cdevPin) Close() error {
	if p == nil || p.line == nil {
		return nil
	}
	_ = p.line.SetValue(0)
	err := p.line.Close()
	p.line = nil
	if p.chip != nil {
		_ = p.chip.Close()
		p.chip = nil
	}
	return err
}
