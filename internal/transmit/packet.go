package transmit

import (
	"gree-ir-home/internal/gree"
)

// IR timing values in Broadlink raw units (not microseconds). Measured
// against the original Daitsu/Gree remote.
const (
	hdrMark    = 0x011F // ~8740µs
	hdrSpace   = 0x90   // ~4385µs
	bitMark    = 20     // ~609µs
	zeroSpace  = 18     // ~548µs
	oneSpace   = 54     // ~1644µs
	footerMark = 19     // ~578µs
)

// Packet envelope markers.
const (
	packetTypeIR = 0x26
	endMark1     = 0x0D
	endMark2     = 0x05
)

// EncodePacket expands a logical Gree frame into raw IR timing data and
// wraps it in the blaster envelope:
//
//	0x26 0x00 | length (2 bytes LE) | timing data | 0x0D 0x05
//
// The timing data is a long header mark/space, the 64 frame bits LSB-first
// as mark/space pairs, and a footer mark. The length field covers the
// timing data plus the two end markers. Timing values above 0xFF use the
// extended three-byte form (0x00, high, low).
func EncodePacket(f gree.Frame) []byte {
	data := make([]byte, 0, 4+gree.FrameSize*16+1)

	// Header mark exceeds one byte, so it is carried in extended form.
	data = append(data, 0x00, hdrMark>>8, hdrMark&0xFF)
	data = append(data, hdrSpace)

	for _, b := range f {
		for i := 0; i < 8; i++ {
			data = append(data, bitMark)
			if (b>>i)&1 == 1 {
				data = append(data, oneSpace)
			} else {
				data = append(data, zeroSpace)
			}
		}
	}

	data = append(data, footerMark)

	packet := make([]byte, 0, len(data)+6)
	packet = append(packet, packetTypeIR, 0x00) // type, no repeat
	total := len(data) + 2                      // end markers counted in length
	packet = append(packet, byte(total), byte(total>>8))
	packet = append(packet, data...)
	packet = append(packet, endMark1, endMark2)

	return packet
}
