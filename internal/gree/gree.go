// Package gree implements the Gree/Daitsu infrared command protocol:
// the closed climate enumerations and the bit-exact 8-byte command frame.
package gree

import "fmt"

// Mode is the HVAC operating mode. Off doubles as the power switch:
// a unit with mode Off is powered down.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeHeat
	ModeCool
	ModeDry
	ModeFanOnly
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeHeat:
		return "heat"
	case ModeCool:
		return "cool"
	case ModeDry:
		return "dry"
	case ModeFanOnly:
		return "fan_only"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the six defined modes.
func (m Mode) Valid() bool { return m <= ModeAuto }

// ParseMode maps an external mode token to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "off":
		return ModeOff, nil
	case "heat":
		return ModeHeat, nil
	case "cool":
		return ModeCool, nil
	case "dry":
		return ModeDry, nil
	case "fan_only":
		return ModeFanOnly, nil
	case "auto":
		return ModeAuto, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// FanSpeed is the fan speed selection.
type FanSpeed uint8

const (
	FanAuto FanSpeed = iota
	FanMax
	FanMed
	FanMin
)

func (f FanSpeed) String() string {
	switch f {
	case FanAuto:
		return "auto"
	case FanMax:
		return "max"
	case FanMed:
		return "med"
	case FanMin:
		return "min"
	default:
		return fmt.Sprintf("fan(%d)", uint8(f))
	}
}

// Valid reports whether f is one of the four defined speeds.
func (f FanSpeed) Valid() bool { return f <= FanMin }

// ParseFanSpeed maps an external fan token to a FanSpeed.
func ParseFanSpeed(s string) (FanSpeed, error) {
	switch s {
	case "auto":
		return FanAuto, nil
	case "max":
		return FanMax, nil
	case "med":
		return FanMed, nil
	case "min":
		return FanMin, nil
	default:
		return 0, fmt.Errorf("unknown fan speed %q", s)
	}
}

// Swing is the louver swing position.
type Swing uint8

const (
	SwingOff Swing = iota
	SwingVertical
	SwingHorizontal
	SwingBoth
)

func (s Swing) String() string {
	switch s {
	case SwingOff:
		return "off"
	case SwingVertical:
		return "vertical"
	case SwingHorizontal:
		return "horizontal"
	case SwingBoth:
		return "both"
	default:
		return fmt.Sprintf("swing(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the four defined positions.
func (s Swing) Valid() bool { return s <= SwingBoth }

// ParseSwing maps an external swing token to a Swing.
func ParseSwing(s string) (Swing, error) {
	switch s {
	case "off":
		return SwingOff, nil
	case "vertical":
		return SwingVertical, nil
	case "horizontal":
		return SwingHorizontal, nil
	case "both":
		return SwingBoth, nil
	default:
		return 0, fmt.Errorf("unknown swing position %q", s)
	}
}

// Target temperature limits accepted by the physical units.
const (
	MinTemp = 16
	MaxTemp = 30
)

// State is a snapshot of the desired climate state of one unit. SwingEnabled
// mirrors the per-device swing capability flag; when false the swing field is
// ignored by the frame encoder.
type State struct {
	Mode         Mode
	Temperature  int // degrees Celsius, MinTemp..MaxTemp
	Fan          FanSpeed
	Swing        Swing
	SwingEnabled bool
}

// Power reports whether the state represents a powered-on unit.
func (s State) Power() bool { return s.Mode != ModeOff }
