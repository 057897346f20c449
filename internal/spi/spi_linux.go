//go:build linux

package spi

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl requests (linux/spi/spidev.h).
const (
	spiIOCWrMode        = 0x40016B01
	spiIOCWrBitsPerWord = 0x40016B03
	spiIOCWrMaxSpeedHz  = 0x40046B04
	spiIOCMessage1      = 0x40206B00
)

// transfer mirrors struct spi_ioc_transfer.
type transfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNbits        uint8
	rxNbits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// Bus is an opened spidev node (e.g., /dev/spidev0.0).
type Bus struct {
	mu      *sync.Mutex
	f       *os.File
	path    string
	speedHz uint32
}

// Open opens the bus in the given mode. softCS disables the controller's
// chip select so GPIO lines can select devices instead.
func Open(path string, mode Mode, speedHz uint32, softCS bool) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spi: open %s: %w", path, err)
	}
	if speedHz == 0 {
		speedHz = DefaultSpeedHz
	}
	b := &Bus{mu: lockFor(path), f: f, path: path, speedHz: speedHz}

	m := uint8(mode)
	if softCS {
		m |= noCS
	}
	bits := uint8(8)
	if err := b.ioctl(spiIOCWrMode, unsafe.Pointer(&m)); err != nil {
		f.Close()
		return nil, fmt.Errorf("spi: set mode: %w", err)
	}
	if err := b.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		f.Close()
		return nil, fmt.Errorf("spi: set bits per word: %w", err)
	}
	if err := b.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&speedHz)); err != nil {
		f.Close()
		return nil, fmt.Errorf("spi: set speed: %w", err)
	}
	return b, nil
}

// Close releases the bus.
func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// tx runs one transfer. Caller holds b.mu.
func (b *Bus) tx(w, r []byte) error {
	if b.f == nil {
		return fmt.Errorf("spi: bus %s closed", b.path)
	}
	if len(w) == 0 {
		return nil
	}
	t := transfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&r[0]))),
		length:      uint32(len(w)),
		speedHz:     b.speedHz,
		bitsPerWord: 8,
	}
	if err := b.ioctl(spiIOCMessage1, unsafe.Pointer(&t)); err != nil {
		return fmt.Errorf("spi: transfer on %s: %w", b.path, err)
	}
	return nil
}

func (b *Bus) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
