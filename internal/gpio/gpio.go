// Package gpio provides digital outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Output drives one binary pin.
type Output interface {
	// Set energizes (true) or de-energizes (false) the output. Polarity
	// is applied by the implementation: on means "active".
	Set(on bool) error

	// Close de-energizes the output and releases it.
	Close() error
}

// DefaultChip is the GPIO character device holding the header pins.
const DefaultChip = "gpiochip0"

// NullOutput is an Output with nothing attached. It is used for zones that
// only carry a sensor and when no safety switch is configured.
type NullOutput struct{}

// Set does nothing.
func (NullOutput) Set(bool) error { return nil }

// Close does nothing.
func (NullOutput) Close() error { return nil }

// line is the part of a requested GPIO line an output drives.
type line interface {
	SetValue(int) error
	Close() error
}

// release drives l to its inactive level and hands it back to the kernel.
// The line is not reconfigured as an input: with active-low wiring a
// pulled input sits at the active level.
func release(l line, pin int) error {
	var errs []error
	if err := l.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("deactivate pin %d: %w", pin, err))
	}
	if err := l.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
	}
	return errors.Join(errs...)
}
