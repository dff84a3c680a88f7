package transmit

import (
	"testing"

	"gree-ir-home/internal/gree"
)

func TestEncodePacketEnvelope(t *testing.T) {
	f := gree.Encode(gree.State{Mode: gree.ModeCool, Temperature: 24})
	p := EncodePacket(f)

	if p[0] != 0x26 || p[1] != 0x00 {
		t.Errorf("envelope header = % X, want 26 00", p[:2])
	}
	if p[len(p)-2] != 0x0D || p[len(p)-1] != 0x05 {
		t.Errorf("end markers = % X, want 0D 05", p[len(p)-2:])
	}

	// Length field covers timing data plus end markers.
	length := int(p[2]) | int(p[3])<<8
	if want := len(p) - 4; length != want {
		t.Errorf("length field = %d, want %d", length, want)
	}
}

func TestEncodePacketTimingData(t *testing.T) {
	f := gree.Encode(gree.State{Mode: gree.ModeCool, Temperature: 24})
	p := EncodePacket(f)
	data := p[4 : len(p)-2]

	// Extended header mark, then the header space.
	if data[0] != 0x00 || data[1] != 0x01 || data[2] != 0x1F {
		t.Errorf("header mark = % X, want 00 01 1F", data[:3])
	}
	if data[3] != 0x90 {
		t.Errorf("header space = 0x%02X, want 0x90", data[3])
	}

	// 64 mark/space bit pairs follow, then the footer mark.
	bits := data[4 : len(data)-1]
	if len(bits) != gree.FrameSize*8*2 {
		t.Fatalf("bit pair bytes = %d, want %d", len(bits), gree.FrameSize*8*2)
	}
	if data[len(data)-1] != footerMark {
		t.Errorf("footer = 0x%02X, want 0x%02X", data[len(data)-1], footerMark)
	}

	// Byte 0 of the cool/24 frame is 0x21: bits LSB-first are 1,0,0,0,0,1,0,0.
	wantBits := []byte{1, 0, 0, 0, 0, 1, 0, 0}
	for i, want := range wantBits {
		mark, space := bits[i*2], bits[i*2+1]
		if mark != bitMark {
			t.Errorf("bit %d: mark = %d, want %d", i, mark, bitMark)
		}
		wantSpace := byte(zeroSpace)
		if want == 1 {
			wantSpace = oneSpace
		}
		if space != wantSpace {
			t.Errorf("bit %d: space = %d, want %d", i, space, wantSpace)
		}
	}
}

func TestEncodePacketDeterministic(t *testing.T) {
	f := gree.Encode(gree.State{Mode: gree.ModeHeat, Temperature: 21, Fan: gree.FanMin})
	a := EncodePacket(f)
	b := EncodePacket(f)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("packets differ at %d", i)
		}
	}
}
