package conn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	"tbroker/common/connection"
	"tbroker/common/logger"
)

const DefaultOutboundQueueSize = 256

var ErrConnectionClosed = errors.New("connection closed")

// queued is an envelope waiting for the writer, with the codec chosen when it was delivered.
type queued struct {
	envelope messages.Envelope
	protocol uint8
}

// Connection is one admitted client. The handler goroutine reads from the transport, the
// writer goroutine drains the outbound queue; nothing else touches the socket.
type Connection struct {
	id           string
	transport    connection.IConnection
	outbound     chan queued
	protocol     uint32
	dropped      uint64
	writeTimeout time.Duration
	closeOnce    sync.Once
	done         chan struct{}
	writerDone   chan struct{}
	onClose      func(*Connection)
	logger       *logger.SimpleLogger
}

func NewConnection(transport connection.IConnection, queueSize int, writeTimeout time.Duration, l *logger.SimpleLogger) *Connection {
	if queueSize <= 0 {
		queueSize = DefaultOutboundQueueSize
	}
	id := uuid.NewString()
	return &Connection{
		id:           id,
		transport:    transport,
		outbound:     make(chan queued, queueSize),
		protocol:     messages.ProtocolJSON,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		logger:       l.WithPrefix("[Connection]").With("conn", id, "addr", transport.Address()),
	}
}

func (c *Connection) Id() string {
	return c.id
}

func (c *Connection) Address() string {
	return c.transport.Address()
}

func (c *Connection) Transport() connection.IConnection {
	return c.transport
}

func (c *Connection) Protocol() uint8 {
	return uint8(atomic.LoadUint32(&c.protocol))
}

// SetProtocol selects the codec for envelopes delivered from now on. Envelopes already queued keep
// the codec they were delivered with.
func (c *Connection) SetProtocol(protocol uint8) {
	atomic.StoreUint32(&c.protocol, uint32(protocol))
}

func (c *Connection) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}

func (c *Connection) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// OnClose registers a callback run once, after the transport has been closed.
func (c *Connection) OnClose(cb func(*Connection)) {
	c.onClose = cb
}

// Deliver queues envelope without blocking, encoded later with the current protocol. When the
// queue is full the oldest queued envelope is dropped to make room.
func (c *Connection) Deliver(envelope messages.Envelope) error {
	if c.IsClosed() {
		return errors.Wrapf(ErrConnectionClosed, "deliver to %s", c.id)
	}
	item := queued{envelope: envelope, protocol: c.Protocol()}
	for {
		select {
		case c.outbound <- item:
			return nil
		default:
		}
		select {
		case old := <-c.outbound:
			n := atomic.AddUint64(&c.dropped, 1)
			c.logger.Warnf("outbound queue full, dropped %s envelope on topic %s (%d dropped so far)", old.envelope.Type, old.envelope.Topic, n)
		default:
		}
	}
}

// StartWriter spawns the goroutine that writes queued envelopes to the transport.
func (c *Connection) StartWriter() {
	go c.writeLoop()
}

func (c *Connection) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case <-c.done:
			c.flush()
			return
		case item := <-c.outbound:
			if err := c.write(item); err != nil {
				c.logger.Errorf("unable to write %s envelope: %s", item.envelope.Type, err.Error())
				c.Close()
				return
			}
		}
	}
}

// flush writes what is already queued, used for the final error reply before a close.
func (c *Connection) flush() {
	for {
		select {
		case item := <-c.outbound:
			if c.write(item) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(item queued) error {
	frame, err := messages.EncodeEnvelope(item.envelope, item.protocol)
	if err != nil {
		return err
	}
	return c.transport.Write(frame, c.writeTimeout)
}

// Close stops the writer, closes the transport and runs the close callback. Safe to call
// from any goroutine, more than once.
func (c *Connection) Close() (err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return
}

// CloseGracefully lets the writer flush what is queued before the transport is closed.
func (c *Connection) CloseGracefully(timeout time.Duration) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		select {
		case <-c.writerDone:
		case <-time.After(timeout):
		}
		err = c.transport.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection { id: %s, address: %s, type: %s }", c.id, c.Address(), connection.TypeName(c.transport.ConnectionType()))
}
