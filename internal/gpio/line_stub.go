//go:build !linux

package gpio

import "fmt"

// Stub implementation for non-Linux platforms.
func Open(line int, mode Mode) (OutputPin, error) {
	return nil, fmt.Errorf("gpio: line access unsupported on this platform")
}
