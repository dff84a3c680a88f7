// Package transmit delivers encapsulated Gree IR payloads to a physical
// blaster. Backends: Broadlink RM over UDP, a remote entity reachable over
// MQTT, and a serial-attached transmitter.
package transmit

import (
	"context"
	"fmt"
)

// Transmitter is the single capability the climate controller depends on.
// Transmit reports local delivery only; the IR medium itself has no
// acknowledgement, so a nil error means the blaster accepted the payload,
// not that the air conditioner reacted.
type Transmitter interface {
	Transmit(ctx context.Context, payload []byte) error
	Close() error
}

// Error is a delivery failure at the transmit capability boundary.
type Error struct {
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transmit to %s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
