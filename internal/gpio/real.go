//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is an opened GPIO character device handing out output lines.
type Chip struct {
	chip     *gpiocdev.Chip
	consumer string
}

// OpenChip opens the named chip (e.g. "gpiochip0").
func OpenChip(name, consumer string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip, consumer: consumer}, nil
}

// Output requests pin (BCM numbering) as an output, initially inactive.
// activeHigh=false inverts the line so that Set(true) drives it low.
func (c *Chip) Output(pin int, activeHigh bool) (*RealOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer(c.consumer)}
	if !activeHigh {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line, pin: pin}, nil
}

// Close releases the chip. Lines handed out stay valid until closed.
func (c *Chip) Close() error {
	if c.chip == nil {
		return nil
	}
	err := c.chip.Close()
	c.chip = nil
	return err
}

// RealOutput drives one GPIO line.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// Set drives the line to its active (on) or inactive level.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Close drives the line inactive and releases it.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}
	err := release(o.line, o.pin)
	o.line = nil
	return err
}
