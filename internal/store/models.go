package store

import "time"

// CommandRecord is one transmitted command. Delivered reflects local
// delivery by the transmit capability only; the unit itself never confirms.
type CommandRecord struct {
	Time        time.Time `json:"time"`
	Mode        string    `json:"mode"`
	Temperature int       `json:"temperature"`
	Fan         string    `json:"fan"`
	Swing       string    `json:"swing,omitempty"`
	Frame       string    `json:"frame"` // hex of the 8 protocol bytes
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
}
