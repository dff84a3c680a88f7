// Package store persists transmitter sessions and the per-unit command
// history. Desired climate state is deliberately not persisted: the hardware
// offers no read-back, so every boot starts from the OFF baseline sync.
package store

import "gree-ir-home/internal/transmit"

// Store defines the persistence interface.
type Store interface {
	// Broadlink auth sessions, keyed by blaster host.
	// GetSession returns (nil, nil) when no session is cached.
	GetSession(host string) (*transmit.Session, error)
	PutSession(host string, s *transmit.Session) error
	DeleteSession(host string) error

	// Command history per unit, newest first.
	AppendCommand(unit string, rec *CommandRecord) error
	ListCommands(unit string, limit int) ([]*CommandRecord, error)

	// Close the store
	Close() error
}
