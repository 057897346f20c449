//go:build !linux

package gpio

import "errors"

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name, consumer string) (*Chip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(pin int, activeHigh bool) (*RealOutput, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(on bool) error { return errors.New("gpio: not supported") }

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error { return nil }
