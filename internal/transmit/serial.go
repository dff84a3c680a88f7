package transmit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// SerialBlaster drives a serial-attached IR transmitter. The payload is
// written as-is: the envelope already carries its own length field and end
// markers, which is what these transmitter firmwares frame on.
type SerialBlaster struct {
	port   serial.Port
	name   string
	logger *slog.Logger

	mu sync.Mutex // one write at a time; the firmware has no flow control
}

// NewSerialBlaster opens the serial port at 8N1.
func NewSerialBlaster(portName string, baud int, logger *slog.Logger) (*SerialBlaster, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return &SerialBlaster{
		port:   port,
		name:   portName,
		logger: logger.With("component", "serial", "port", portName),
	}, nil
}

// Transmit writes the payload to the port.
func (s *SerialBlaster) Transmit(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.port.Write(payload)
	if err != nil {
		return &Error{Target: s.name, Err: err}
	}
	if n != len(payload) {
		return &Error{Target: s.name, Err: fmt.Errorf("incomplete write: %d of %d bytes", n, len(payload))}
	}
	if err := s.port.Drain(); err != nil {
		return &Error{Target: s.name, Err: fmt.Errorf("drain: %w", err)}
	}

	s.logger.Debug("payload written", "bytes", n)
	return nil
}

func (s *SerialBlaster) Close() error {
	return s.port.Close()
}
