package connection

import (
	"time"

	"tbroker/broker_common/messages"
)

// IConnection is one accepted transport. Read and Write are each used by a single goroutine:
// the connection's handler reads and the connection's writer writes.
type IConnection interface {
	ConnectionType() uint8
	Address() string
	// Greet writes the plaintext welcome, before any frame is exchanged.
	Greet(welcome string) error
	// Read blocks for at most timeout (if the transport supports read deadlines) and returns
	// the next complete frame. A timeout error leaves a partially read frame intact.
	Read(timeout time.Duration) (messages.Frame, error)
	Write(frame messages.Frame, timeout time.Duration) error
	Close() error
	State() int
	String() string
}

const (
	StateIdle         = 0
	StateReading      = 1
	StateClosing      = 4
	StateDisconnected = 5
)
