//go:build !linux

package spi

import (
	"fmt"
	"sync"
)

// Bus is unsupported off Linux.
type Bus struct {
	mu *sync.Mutex
}

// Open returns an error on non-Linux platforms.
func Open(path string, mode Mode, speedHz uint32, softCS bool) (*Bus, error) {
	return nil, fmt.Errorf("spi: unsupported OS (need linux)")
}

// Close is a no-op on non-Linux platforms.
func (b *Bus) Close() error { return nil }

func (b *Bus) tx(w, r []byte) error { return fmt.Errorf("spi: unsupported OS") }
