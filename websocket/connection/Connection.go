package connection

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"tbroker/broker_common/messages"
	base_conn "tbroker/common/connection"
)

var ErrUnsupportedMessageType = errors.New("unsupported websocket message type")

// MessageTypeOf maps a frame protocol onto a websocket message type: JSON travels as text,
// FlatBuffers as binary.
func MessageTypeOf(protocol uint8) (int, error) {
	switch protocol {
	case messages.ProtocolJSON:
		return websocket.TextMessage, nil
	case messages.ProtocolFlatBuffer:
		return websocket.BinaryMessage, nil
	}
	return 0, errors.Wrapf(messages.ErrUnknownProtocol, "protocol %d", protocol)
}

func ProtocolOf(messageType int) (uint8, error) {
	switch messageType {
	case websocket.TextMessage:
		return messages.ProtocolJSON, nil
	case websocket.BinaryMessage:
		return messages.ProtocolFlatBuffer, nil
	}
	return 0, errors.Wrapf(ErrUnsupportedMessageType, "type %d", messageType)
}

// WsConnection carries one frame per websocket message. Reads never set a deadline: a
// timed out read leaves a gorilla connection unusable, so the reader is unblocked by Close.
type WsConnection struct {
	conn          *websocket.Conn
	connectedTime time.Time
	state         int
	rwLock        *sync.RWMutex
	writeLock     *sync.Mutex
}

func NewWsConnection(conn *websocket.Conn) *WsConnection {
	return &WsConnection{
		conn:          conn,
		connectedTime: time.Now(),
		state:         base_conn.StateIdle,
		rwLock:        new(sync.RWMutex),
		writeLock:     new(sync.Mutex),
	}
}

func (c *WsConnection) withWrite(cb func()) {
	c.rwLock.Lock()
	defer c.rwLock.Unlock()
	cb()
}

func (c *WsConnection) State() int {
	c.rwLock.RLock()
	defer c.rwLock.RUnlock()
	return c.state
}

func (c *WsConnection) setState(state int) {
	if state < 0 || state > base_conn.StateDisconnected {
		return
	}
	c.withWrite(func() {
		if c.state < state {
			c.state = state
		}
	})
}

func (c *WsConnection) ConnectionType() uint8 {
	return base_conn.TypeWS
}

func (c *WsConnection) Address() string {
	return c.conn.RemoteAddr().String()
}

func (c *WsConnection) Greet(welcome string) error {
	return c.writeMessage(websocket.TextMessage, []byte(welcome), 0)
}

// Read ignores timeout and blocks until a message arrives or the connection is closed.
func (c *WsConnection) Read(timeout time.Duration) (messages.Frame, error) {
	c.setState(base_conn.StateReading)
	messageType, body, err := c.conn.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return messages.Frame{}, errors.Wrap(messages.ErrFrameTooLarge, err.Error())
		}
		return messages.Frame{}, err
	}
	protocol, err := ProtocolOf(messageType)
	if err != nil {
		return messages.Frame{}, err
	}
	return messages.Frame{Protocol: protocol, Body: body}, nil
}

func (c *WsConnection) Write(frame messages.Frame, timeout time.Duration) error {
	messageType, err := MessageTypeOf(frame.Protocol)
	if err != nil {
		return err
	}
	return c.writeMessage(messageType, frame.Body, timeout)
}

func (c *WsConnection) writeMessage(messageType int, data []byte, timeout time.Duration) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *WsConnection) Close() (err error) {
	if c.State() >= base_conn.StateClosing {
		return nil
	}
	c.setState(base_conn.StateClosing)
	err = c.conn.Close()
	c.setState(base_conn.StateDisconnected)
	return
}

func (c *WsConnection) String() string {
	return fmt.Sprintf("WsConnection { address: %s, state: %d, connected: %s }", c.Address(), c.State(), c.connectedTime.Format(time.RFC3339))
}
