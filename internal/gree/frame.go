package gree

// FrameSize is the fixed length of a Gree command frame.
const FrameSize = 8

// Frame is an encoded Gree command, ready for IR encapsulation.
type Frame [FrameSize]byte

// Mode codes on the wire. Heat shares 0x00 with the powered-off frame; the
// power bit in byte 0 disambiguates.
const (
	codeModeHeat    = 0x00
	codeModeCool    = 0x02
	codeModeDry     = 0x03
	codeModeFanOnly = 0x04
	codeModeAuto    = 0x05
)

// Swing flags in the lower nibble of byte 4.
const (
	swingFlagVertical   = 0x01
	swingFlagHorizontal = 0x02
)

// Encode translates a state snapshot into the 8-byte command frame.
//
// Layout:
//
//	byte 0: bit 0 power, bits 2-5 temperature - 16
//	byte 1: timer (not modeled, always 0x00)
//	byte 2: 0x50 vendor constant
//	byte 3: mode code
//	byte 4: fan bits 4-5, swing flags in lower nibble
//	byte 5: display (always 0x00)
//	byte 6: reserved
//	byte 7: sum of bytes 0-6 mod 256
//
// Encode is total: callers are expected to pass validated state, and the
// temperature is re-clamped here so a bad value can never produce an
// out-of-range bit pattern.
func Encode(s State) Frame {
	var f Frame

	temp := s.Temperature
	if temp < MinTemp {
		temp = MinTemp
	}
	if temp > MaxTemp {
		temp = MaxTemp
	}

	f[0] = byte(temp-MinTemp) << 2
	if s.Power() {
		f[0] |= 0x01
	}

	f[1] = 0x00 // timer
	f[2] = 0x50

	// A powered-off frame always carries mode code 0x00; the unit ignores
	// fan and swing fields when off, but we zero byte 3 to match the
	// remote's own OFF command.
	if s.Power() {
		f[3] = modeCode(s.Mode)
	}

	f[4] = fanBits(s.Fan) << 4
	if s.SwingEnabled {
		f[4] |= swingBits(s.Swing)
	}

	f[5] = 0x00 // display
	f[6] = 0x00 // reserved
	f[7] = Checksum(f[:7])

	return f
}

// Checksum is the additive frame checksum: sum of the given bytes mod 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

func modeCode(m Mode) byte {
	switch m {
	case ModeCool:
		return codeModeCool
	case ModeDry:
		return codeModeDry
	case ModeFanOnly:
		return codeModeFanOnly
	case ModeAuto:
		return codeModeAuto
	default:
		return codeModeHeat
	}
}

func fanBits(f FanSpeed) byte {
	switch f {
	case FanMax:
		return 0b01
	case FanMed:
		return 0b10
	case FanMin:
		return 0b11
	default:
		return 0b00
	}
}

func swingBits(s Swing) byte {
	switch s {
	case SwingVertical:
		return swingFlagVertical
	case SwingHorizontal:
		return swingFlagHorizontal
	case SwingBoth:
		return swingFlagVertical | swingFlagHorizontal
	default:
		return 0
	}
}
