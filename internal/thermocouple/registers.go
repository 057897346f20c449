// Package thermocouple drives the MAX31856 thermocouple-to-digital converter
// over an 8-bit address/value register interface.
//
// Writes send the register address with bit 7 set followed by the value.
// Reads send the address with bit 7 clear and clock out N big-endian bytes;
// the device auto-increments the address, so adjacent registers can be read
// in one burst.
package thermocouple

// Register addresses.
const (
	regCR0   = 0x00
	regCR1   = 0x01
	regMask  = 0x02
	regCJHF  = 0x03
	regCJLF  = 0x04
	regLTHFH = 0x05
	regLTHFL = 0x06
	regLTLFH = 0x07
	regLTLFL = 0x08
	regCJTO  = 0x09
	regCJTH  = 0x0A
	regCJTL  = 0x0B
	regLTCBH = 0x0C
	regLTCBM = 0x0D
	regLTCBL = 0x0E
	regSR    = 0x0F

	numRegisters = 16
)

// CR0 bits.
const (
	cr0AutoConvert = 0x80
	cr0OneShot     = 0x40
	cr0OCFault1    = 0x20
	cr0OCFault0    = 0x10
	cr0CJDisable   = 0x08
	cr0FaultMode   = 0x04
	cr0FaultClear  = 0x02
	cr0AC50Hz      = 0x01
)

// Fault status bits (SR register). The low six also serve as MASK bits.
const (
	FaultCJRange     = 0x80
	FaultTCRange     = 0x40
	FaultCJHigh      = 0x20
	FaultCJLow       = 0x10
	FaultTCHigh      = 0x08
	FaultTCLow       = 0x04
	FaultVoltage     = 0x02
	FaultOpenCircuit = 0x01

	maskAll = FaultCJHigh | FaultCJLow | FaultTCHigh | FaultTCLow | FaultVoltage | FaultOpenCircuit
)

const (
	readMask  = 0x7F
	writeFlag = 0x80
)

// Type selects the thermocouple type programmed into CR1[3:0].
type Type byte

const (
	TypeB   Type = 0x0
	TypeE   Type = 0x1
	TypeJ   Type = 0x2
	TypeK   Type = 0x3
	TypeN   Type = 0x4
	TypeR   Type = 0x5
	TypeS   Type = 0x6
	TypeT   Type = 0x7
	TypeG8  Type = 0x8
	TypeG32 Type = 0xC
)

// ParseType maps a letter ("K", "s", ...) to a Type. The second result is
// false for unknown names.
func ParseType(s string) (Type, bool) {
	switch s {
	case "B", "b":
		return TypeB, true
	case "E", "e":
		return TypeE, true
	case "J", "j":
		return TypeJ, true
	case "K", "k", "":
		return TypeK, true
	case "N", "n":
		return TypeN, true
	case "R", "r":
		return TypeR, true
	case "S", "s":
		return TypeS, true
	case "T", "t":
		return TypeT, true
	}
	return 0, false
}

// Averaging selects how many conversions the device averages, CR1[6:4].
type Averaging byte

const (
	Average1  Averaging = 0x00
	Average2  Averaging = 0x10
	Average4  Averaging = 0x20
	Average8  Averaging = 0x30
	Average16 Averaging = 0x40
)

// AveragingFor returns the CR1 averaging field for n samples. Values that
// are not a supported count round down to the nearest supported one.
func AveragingFor(n int) Averaging {
	switch {
	case n >= 16:
		return Average16
	case n >= 8:
		return Average8
	case n >= 4:
		return Average4
	case n >= 2:
		return Average2
	default:
		return Average1
	}
}
