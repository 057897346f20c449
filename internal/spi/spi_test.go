package spi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/kiln-controller/internal/gpio"
)

func TestDeviceTx_LengthMismatch(t *testing.T) {
	d := (&Bus{mu: &sync.Mutex{}}).Device(nil)
	err := d.Tx(make([]byte, 2), make([]byte, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestDeviceTx_ReleasesChipSelectOnError(t *testing.T) {
	cs := gpio.NewFakeOutput()
	d := (&Bus{mu: &sync.Mutex{}}).Device(cs)

	// The bus has no open file, so the transfer itself fails.
	err := d.Tx([]byte{0x0F, 0}, make([]byte, 2))
	require.Error(t, err)

	assert.Equal(t, []bool{true, false}, cs.History())
	assert.False(t, cs.On())
}

func TestLockFor_SharedPerPath(t *testing.T) {
	a := lockFor("/dev/spidev0.0")
	b := lockFor("/dev/spidev0.0")
	c := lockFor("/dev/spidev0.1")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

// stuckCS asserts fine but cannot be released.
type stuckCS struct{ gpio.FakeOutput }

func (s *stuckCS) Set(on bool) error {
	if !on {
		return errors.New("line stuck")
	}
	return s.FakeOutput.Set(on)
}

func TestDeviceTx_ReportsChipSelectReleaseFailure(t *testing.T) {
	cs := &stuckCS{}
	d := (&Bus{mu: &sync.Mutex{}}).Device(cs)

	err := d.Tx([]byte{0x0F, 0}, make([]byte, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release chip select")
	assert.Contains(t, err.Error(), "line stuck")
}
