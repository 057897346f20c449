// Package spi exchanges bytes with devices on a Linux spidev bus.
//
// Several thermocouple converters usually share one bus, each selected by
// its own GPIO chip-select line, so a Bus serializes transactions and a
// Device asserts its chip select around each one.
package spi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/kiln-controller/internal/gpio"
)

// Mode is the SPI clock polarity/phase mode (0-3).
type Mode uint8

const (
	Mode0 Mode = 0x0
	Mode1 Mode = 0x1
	Mode2 Mode = 0x2
	Mode3 Mode = 0x3

	// noCS tells spidev not to drive its own chip select.
	noCS = 0x40
)

// DefaultSpeedHz matches the converter's conservative clock.
const DefaultSpeedHz = 100000

// Device is one chip on a shared Bus. It implements thermocouple.Conn.
type Device struct {
	bus *Bus
	cs  gpio.Output
}

// Device returns a handle for the chip selected by cs. A nil cs uses the
// controller's hardware chip select.
func (b *Bus) Device(cs gpio.Output) *Device {
	return &Device{bus: b, cs: cs}
}

// Tx performs one full-duplex transfer with the chip selected. A failure
// to release the chip select is reported with the transfer's own error.
func (d *Device) Tx(w, r []byte) (err error) {
	if len(w) != len(r) {
		return fmt.Errorf("spi: tx/rx length mismatch %d != %d", len(w), len(r))
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()

	if d.cs != nil {
		if err := d.cs.Set(true); err != nil {
			return fmt.Errorf("spi: assert chip select: %w", err)
		}
		defer func() {
			if cerr := d.cs.Set(false); cerr != nil {
				err = errors.Join(err, fmt.Errorf("spi: release chip select: %w", cerr))
			}
		}()
	}
	return d.bus.tx(w, r)
}

// busLocks keeps one mutex per bus path so devices opened through
// different Bus values still serialize.
var (
	busLocksMu sync.Mutex
	busLocks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	busLocksMu.Lock()
	defer busLocksMu.Unlock()
	mu, ok := busLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		busLocks[path] = mu
	}
	return mu
}
