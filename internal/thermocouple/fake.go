package thermocouple

import (
	"errors"
	"sync"
)

// FakeDevice is a register-level MAX31856 for tests and simulation.
// It implements Conn.
type FakeDevice struct {
	mu   sync.Mutex
	regs [numRegisters]byte

	// Writes records every register write as {addr, value}.
	Writes [][2]byte

	// TxError, if set, is returned by every Tx.
	TxError error
}

// NewFakeDevice returns a device with all registers zero.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{}
}

// Tx implements Conn. Reads and writes auto-increment the address.
func (f *FakeDevice) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TxError != nil {
		return f.TxError
	}
	if len(w) == 0 || len(w) != len(r) {
		return errors.New("fake max31856: bad transaction length")
	}
	addr := int(w[0] & readMask)
	if w[0]&writeFlag != 0 {
		for i, v := range w[1:] {
			a := (addr + i) % numRegisters
			if a == regCR0 {
				// The device clears 1SHOT once the conversion is done.
				v &^= cr0OneShot
			}
			f.regs[a] = v
			f.Writes = append(f.Writes, [2]byte{byte(a), w[1+i]})
		}
		return nil
	}
	for i := range r[1:] {
		r[1+i] = f.regs[(addr+i)%numRegisters]
	}
	return nil
}

// Register returns the current value of a register.
func (f *FakeDevice) Register(addr byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[addr%numRegisters]
}

// SetTemperature loads the LTCB registers with c (°C).
func (f *FakeDevice) SetTemperature(c float64) {
	raw := int32(c * tempScale)
	u := uint32(raw)
	f.mu.Lock()
	f.regs[regLTCBH] = byte(u >> 16)
	f.regs[regLTCBM] = byte(u >> 8)
	f.regs[regLTCBL] = byte(u)
	f.mu.Unlock()
}

// SetColdJunction loads the CJT registers with c (°C).
func (f *FakeDevice) SetColdJunction(c float64) {
	u := uint16(int16(c * coldScale))
	f.mu.Lock()
	f.regs[regCJTH] = byte(u >> 8)
	f.regs[regCJTL] = byte(u)
	f.mu.Unlock()
}

// SetFaults loads the status register.
func (f *FakeDevice) SetFaults(b byte) {
	f.mu.Lock()
	f.regs[regSR] = b
	f.mu.Unlock()
}
