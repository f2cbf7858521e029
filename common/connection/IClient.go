package connection

import (
	"time"

	"tbroker/broker_common/messages"
)

// IClient is the client side of the broker protocol.
type IClient interface {
	Connect() error
	Welcome() string
	Send(envelope messages.Envelope) error
	Receive(timeout time.Duration) (messages.Envelope, error)
	Close() error
}
