package thermocouple

import (
	"math"
	"strings"
)

// Fixed-point scales.
const (
	tempScale      = 4096.0 // linearized TC value, after the 8-bit shift
	coldScale      = 256.0
	thresholdScale = 16.0
)

// DecodeTemperature converts the three LTCB bytes (high, mid, low) to °C.
// The bytes are the top three of a big-endian 32-bit word; an arithmetic
// shift right by 8 sign-extends the 24-bit value.
func DecodeTemperature(b [3]byte) float64 {
	raw := int32(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8) >> 8
	return float64(raw) / tempScale
}

// DecodeColdJunction converts the two CJT bytes (high, low) to °C.
func DecodeColdJunction(b [2]byte) float64 {
	raw := int16(uint16(b[0])<<8 | uint16(b[1]))
	return float64(raw) / coldScale
}

// EncodeTemperatureThreshold converts °C to the 16-bit signed threshold
// register pair (high, low) with 1/16 °C resolution. Fractions truncate
// toward zero; out-of-range values saturate.
func EncodeTemperatureThreshold(c float64) [2]byte {
	v := saturate16(math.Trunc(c * thresholdScale))
	return [2]byte{byte(uint16(v) >> 8), byte(uint16(v))}
}

// DecodeTemperatureThreshold is the inverse of EncodeTemperatureThreshold.
func DecodeTemperatureThreshold(b [2]byte) float64 {
	raw := int16(uint16(b[0])<<8 | uint16(b[1]))
	return float64(raw) / thresholdScale
}

// EncodeColdJunctionThreshold converts °C to the signed whole-degree
// cold-junction threshold byte.
func EncodeColdJunctionThreshold(c float64) byte {
	v := math.Trunc(c)
	if v > math.MaxInt8 {
		v = math.MaxInt8
	}
	if v < math.MinInt8 {
		v = math.MinInt8
	}
	return byte(int8(v))
}

// DecodeColdJunctionThreshold is the inverse of EncodeColdJunctionThreshold.
func DecodeColdJunctionThreshold(b byte) float64 {
	return float64(int8(b))
}

func saturate16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FaultSet is the decoded fault status register.
type FaultSet struct {
	Raw         byte
	CJRange     bool
	TCRange     bool
	CJHigh      bool
	CJLow       bool
	TCHigh      bool
	TCLow       bool
	Voltage     bool
	OpenCircuit bool
}

// DecodeFaults splits the status byte into named flags.
func DecodeFaults(b byte) FaultSet {
	return FaultSet{
		Raw:         b,
		CJRange:     b&FaultCJRange != 0,
		TCRange:     b&FaultTCRange != 0,
		CJHigh:      b&FaultCJHigh != 0,
		CJLow:       b&FaultCJLow != 0,
		TCHigh:      b&FaultTCHigh != 0,
		TCLow:       b&FaultTCLow != 0,
		Voltage:     b&FaultVoltage != 0,
		OpenCircuit: b&FaultOpenCircuit != 0,
	}
}

// Faulted reports whether any fault bit is set.
func (f FaultSet) Faulted() bool { return f.Raw != 0 }

// Names returns the names of the active faults in register bit order.
func (f FaultSet) Names() []string {
	var names []string
	for _, n := range []struct {
		on   bool
		name string
	}{
		{f.CJRange, "cj_range"},
		{f.TCRange, "tc_range"},
		{f.CJHigh, "cj_high"},
		{f.CJLow, "cj_low"},
		{f.TCHigh, "tc_high"},
		{f.TCLow, "tc_low"},
		{f.Voltage, "voltage"},
		{f.OpenCircuit, "open_circuit"},
	} {
		if n.on {
			names = append(names, n.name)
		}
	}
	return names
}

func (f FaultSet) String() string {
	if !f.Faulted() {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// Reading is one poll of the device.
type Reading struct {
	Temperature  float64
	ColdJunction float64
	Faults       FaultSet
}
