package thermocouple

import (
	"fmt"
	"sync"
	"time"
)

// OneShotSettle is how long a triggered one-shot conversion takes before
// results are valid.
const OneShotSettle = 250 * time.Millisecond

// Conn is a full-duplex transaction on the serial link. len(w) == len(r);
// r[i] is clocked in while w[i] is clocked out.
type Conn interface {
	Tx(w, r []byte) error
}

// Options configures the device at construction.
type Options struct {
	Type       Type
	Averaging  Averaging
	Continuous bool
	// AC50Hz selects 50 Hz mains rejection; 60 Hz otherwise.
	AC50Hz bool
}

// Driver is a MAX31856 on a Conn.
//
// Methods may be called from one goroutine at a time; the mutex only keeps
// a trigger and its result read from interleaving.
type Driver struct {
	conn       Conn
	continuous bool

	mu    sync.Mutex
	sleep func(time.Duration)
}

// New programs CR0, CR1 and the fault mask once and returns the driver.
func New(conn Conn, opts Options) (*Driver, error) {
	if conn == nil {
		return nil, fmt.Errorf("max31856: nil conn")
	}
	d := &Driver{conn: conn, continuous: opts.Continuous, sleep: time.Sleep}

	cr0 := byte(cr0OCFault0)
	if opts.Continuous {
		cr0 |= cr0AutoConvert
	}
	if opts.AC50Hz {
		cr0 |= cr0AC50Hz
	}
	if err := d.writeRegister(regCR0, cr0); err != nil {
		return nil, err
	}
	if err := d.writeRegister(regCR1, byte(opts.Averaging)|byte(opts.Type)); err != nil {
		return nil, err
	}
	// Faults still populate SR; only the FAULT pin is suppressed.
	if err := d.writeRegister(regMask, maskAll); err != nil {
		return nil, err
	}
	return d, nil
}

// ReadTemperature returns the linearized thermocouple temperature in °C.
func (d *Driver) ReadTemperature() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.trigger(); err != nil {
		return 0, err
	}
	b, err := d.readRegister(regLTCBH, 3)
	if err != nil {
		return 0, err
	}
	return DecodeTemperature([3]byte{b[0], b[1], b[2]}), nil
}

// ReadColdJunction returns the cold-junction temperature in °C.
func (d *Driver) ReadColdJunction() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.trigger(); err != nil {
		return 0, err
	}
	b, err := d.readRegister(regCJTH, 2)
	if err != nil {
		return 0, err
	}
	return DecodeColdJunction([2]byte{b[0], b[1]}), nil
}

// ReadFaults returns the decoded fault status register.
func (d *Driver) ReadFaults() (FaultSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.readRegister(regSR, 1)
	if err != nil {
		return FaultSet{}, err
	}
	return DecodeFaults(b[0]), nil
}

// Read triggers one conversion (unless continuous) and reads cold junction,
// thermocouple and status registers in a single burst.
func (d *Driver) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.trigger(); err != nil {
		return Reading{}, err
	}
	b, err := d.readRegister(regCJTH, regSR-regCJTH+1)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		ColdJunction: DecodeColdJunction([2]byte{b[0], b[1]}),
		Temperature:  DecodeTemperature([3]byte{b[2], b[3], b[4]}),
		Faults:       DecodeFaults(b[5]),
	}, nil
}

// SetTemperatureThresholds programs the thermocouple low/high fault
// thresholds in °C (1/16 °C resolution).
func (d *Driver) SetTemperatureThresholds(low, high float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := EncodeTemperatureThreshold(high)
	l := EncodeTemperatureThreshold(low)
	for _, w := range []struct {
		reg, val byte
	}{
		{regLTHFH, h[0]}, {regLTHFL, h[1]},
		{regLTLFH, l[0]}, {regLTLFL, l[1]},
	} {
		if err := d.writeRegister(w.reg, w.val); err != nil {
			return err
		}
	}
	return nil
}

// TemperatureThresholds reads back the thermocouple thresholds.
func (d *Driver) TemperatureThresholds() (low, high float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.readRegister(regLTHFH, 4)
	if err != nil {
		return 0, 0, err
	}
	high = DecodeTemperatureThreshold([2]byte{b[0], b[1]})
	low = DecodeTemperatureThreshold([2]byte{b[2], b[3]})
	return low, high, nil
}

// SetColdJunctionThresholds programs the cold-junction thresholds in whole
// degrees.
func (d *Driver) SetColdJunctionThresholds(low, high float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeRegister(regCJLF, EncodeColdJunctionThreshold(low)); err != nil {
		return err
	}
	return d.writeRegister(regCJHF, EncodeColdJunctionThreshold(high))
}

// ColdJunctionThresholds reads back the cold-junction thresholds.
func (d *Driver) ColdJunctionThresholds() (low, high float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.readRegister(regCJHF, 2)
	if err != nil {
		return 0, 0, err
	}
	return DecodeColdJunctionThreshold(b[1]), DecodeColdJunctionThreshold(b[0]), nil
}

// trigger starts a one-shot conversion and blocks for the settle time.
// Caller holds d.mu.
func (d *Driver) trigger() error {
	if d.continuous {
		return nil
	}
	if err := d.writeRegister(regCJTO, 0); err != nil {
		return err
	}
	b, err := d.readRegister(regCR0, 1)
	if err != nil {
		return err
	}
	cr0 := b[0]&^cr0AutoConvert | cr0OneShot
	if err := d.writeRegister(regCR0, cr0); err != nil {
		return err
	}
	d.sleep(OneShotSettle)
	return nil
}

func (d *Driver) readRegister(addr byte, n int) ([]byte, error) {
	w := make([]byte, n+1)
	r := make([]byte, n+1)
	w[0] = addr & readMask
	if err := d.conn.Tx(w, r); err != nil {
		return nil, fmt.Errorf("max31856: read register 0x%02X: %w", addr, err)
	}
	return r[1:], nil
}

func (d *Driver) writeRegister(addr, val byte) error {
	w := []byte{addr | writeFlag, val}
	r := make([]byte, len(w))
	if err := d.conn.Tx(w, r); err != nil {
		return fmt.Errorf("max31856: write register 0x%02X: %w", addr, err)
	}
	return nil
}
